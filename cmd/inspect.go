package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
	"github.com/martinhoang/urdf2mjcf/internal/patch"
	"github.com/martinhoang/urdf2mjcf/internal/urdf"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [input.urdf]",
	Short: "Show what a conversion would extract from a URDF description",
	Long: `inspect parses a URDF description and prints the merged <mujoco>
extension block, the annotation fragments with their parsed operations, the
ros2_control command interfaces and the mimic relations, without touching any
baseline document.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := ctxlog.WithLogger(cmd.Context(), newLogger("warn", cmd.ErrOrStderr()))
		model, err := urdf.ParseFile(ctx, osfs.New("/"), absPath(args[0]), nil)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Merged <mujoco> extension block:")
		fmt.Fprintln(out, elementString(model.Extension))

		fmt.Fprintf(out, "Annotation fragments (%d):\n", len(model.Fragments))
		for _, frag := range model.Fragments {
			fmt.Fprintf(out, "  <%s>%s\n", frag.Tag, constraintSummary(frag))
			for _, op := range patch.ParseOperations(ctx, frag) {
				fmt.Fprintf(out, "    %s\n", opSummary(op))
			}
		}

		fmt.Fprintf(out, "\nPlugin declarations (%d):\n", len(model.Plugins))
		for _, p := range model.Plugins {
			fmt.Fprintf(out, "  %s (instance %s)\n",
				p.SelectAttrValue("filename", "?"), p.SelectAttrValue("name", "?"))
		}

		fmt.Fprintf(out, "\nJoint command interfaces (%d):\n", len(model.ControlInterfaces))
		names := make([]string, 0, len(model.ControlInterfaces))
		for name := range model.ControlInterfaces {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			set := model.ControlInterfaces[name]
			kinds := make([]string, 0, len(set))
			for kind := range set {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			fmt.Fprintf(out, "  %s: %s\n", name, strings.Join(kinds, ", "))
		}

		fmt.Fprintf(out, "\nMimic relations (%d):\n", len(model.MimicJoints))
		for _, m := range model.MimicJoints {
			fmt.Fprintf(out, "  %s -> %s  multiplier=%s offset=%s\n", m.Name, m.Joint, m.Multiplier, m.Offset)
		}

		fmt.Fprintf(out, "\nJoints (%d):\n", len(model.Joints))
		for _, j := range model.Joints {
			fmt.Fprintf(out, "  %s (%s)\n", j.Name, j.Type)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func elementString(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	doc.Indent(2)
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

func constraintSummary(frag *etree.Element) string {
	var parts []string
	for _, a := range frag.Attr {
		if patch.IsReserved(a.Key) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", a.Key, a.Value))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

func opSummary(op patch.Operation) string {
	switch op.Kind {
	case patch.OpConditionalReplace:
		return fmt.Sprintf("%s when %s set %s", op.Kind, pairSummary(op.Conditions), pairSummary(op.Replacements))
	case patch.OpInjectChildren:
		return fmt.Sprintf("%s into %s", op.Kind, pairSummary(op.MatchAttrs))
	default:
		return fmt.Sprintf("%s %s", op.Kind, pairSummary(op.Attrs))
	}
}

func pairSummary(pairs []patch.Pair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%q", p.Key, p.Value))
	}
	return strings.Join(parts, " ")
}
