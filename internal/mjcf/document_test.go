package mjcf

import (
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, xml string) *Document {
	t.Helper()
	doc, err := Parse([]byte(xml))
	require.NoError(t, err)
	return doc
}

func childTags(doc *Document) []string {
	children := doc.Root().ChildElements()
	tags := make([]string, 0, len(children))
	for _, c := range children {
		tags = append(tags, c.Tag)
	}
	return tags
}

func TestParse_RejectsMalformedXML(t *testing.T) {
	_, err := Parse([]byte(`<mujoco><worldbody></mujoco>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse mjcf")
}

func TestParse_RequiresRootElement(t *testing.T) {
	_, err := Parse([]byte(`<?xml version="1.0" encoding="utf-8"?>` + "\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no root element")
}

func TestAccessors_NilWhenAbsent(t *testing.T) {
	doc := parse(t, `<mujoco/>`)
	assert.Nil(t, doc.Compiler())
	assert.Nil(t, doc.Worldbody())
	assert.Nil(t, doc.Extension())
	assert.Nil(t, doc.Actuator())
	assert.Nil(t, doc.Option())
	assert.Nil(t, doc.Asset())
}

func TestEnsureCompiler_CreatesAsFirstChild(t *testing.T) {
	doc := parse(t, `<mujoco><worldbody/></mujoco>`)
	compiler := doc.EnsureCompiler()
	require.NotNil(t, compiler)
	assert.Equal(t, []string{"compiler", "worldbody"}, childTags(doc))
	assert.Same(t, compiler, doc.EnsureCompiler())
}

func TestEnsureExtension_AfterCompiler(t *testing.T) {
	doc := parse(t, `<mujoco><compiler/><option/><worldbody/></mujoco>`)
	doc.EnsureExtension()
	assert.Equal(t, []string{"compiler", "extension", "option", "worldbody"}, childTags(doc))
}

func TestEnsureExtension_BeforeWorldbodyWithoutCompiler(t *testing.T) {
	doc := parse(t, `<mujoco><option/><worldbody/></mujoco>`)
	doc.EnsureExtension()
	assert.Equal(t, []string{"option", "extension", "worldbody"}, childTags(doc))
}

func TestEnsureExtension_AppendsAsLastResort(t *testing.T) {
	doc := parse(t, `<mujoco><asset/></mujoco>`)
	doc.EnsureExtension()
	assert.Equal(t, []string{"asset", "extension"}, childTags(doc))
}

func TestEnsureExtension_ReturnsExisting(t *testing.T) {
	doc := parse(t, `<mujoco><extension/><worldbody/></mujoco>`)
	ext := doc.Extension()
	assert.Same(t, ext, doc.EnsureExtension())
	assert.Equal(t, []string{"extension", "worldbody"}, childTags(doc))
}

func TestEnsureOption_AfterCompilerElseFirst(t *testing.T) {
	doc := parse(t, `<mujoco><compiler/><worldbody/></mujoco>`)
	doc.EnsureOption()
	assert.Equal(t, []string{"compiler", "option", "worldbody"}, childTags(doc))

	doc = parse(t, `<mujoco><worldbody/></mujoco>`)
	doc.EnsureOption()
	assert.Equal(t, []string{"option", "worldbody"}, childTags(doc))
}

func TestEnsureActuator_AfterWorldbodyElseAppend(t *testing.T) {
	doc := parse(t, `<mujoco><worldbody/><keyframe/></mujoco>`)
	doc.EnsureActuator()
	assert.Equal(t, []string{"worldbody", "actuator", "keyframe"}, childTags(doc))

	doc = parse(t, `<mujoco><compiler/></mujoco>`)
	doc.EnsureActuator()
	assert.Equal(t, []string{"compiler", "actuator"}, childTags(doc))
}

func TestEnsureBeforeWorldbody_ReturnsExistingDirectChild(t *testing.T) {
	doc := parse(t, `<mujoco><sensor rate="1"/><worldbody/></mujoco>`)
	sensor := doc.EnsureBeforeWorldbody("sensor")
	assert.Equal(t, "1", sensor.SelectAttrValue("rate", ""))
	assert.Equal(t, []string{"sensor", "worldbody"}, childTags(doc))
}

func TestEnsureBeforeWorldbody_IgnoresNestedElements(t *testing.T) {
	doc := parse(t, `<mujoco><worldbody><site name="inner"/></worldbody></mujoco>`)
	site := doc.EnsureBeforeWorldbody("site")
	assert.Equal(t, "", site.SelectAttrValue("name", ""))
	assert.Equal(t, []string{"site", "worldbody"}, childTags(doc))
}

func TestEnsureBeforeWorldbody_AppendsWithoutWorldbody(t *testing.T) {
	doc := parse(t, `<mujoco><compiler/></mujoco>`)
	doc.EnsureBeforeWorldbody("default")
	assert.Equal(t, []string{"compiler", "default"}, childTags(doc))
}

func TestSerialize_DeclarationAndTabIndent(t *testing.T) {
	doc := parse(t, `<mujoco><compiler angle="radian"/><worldbody><geom name="g"/></worldbody></mujoco>`)

	data, err := doc.Serialize()
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="utf-8"?>`), out)
	assert.Contains(t, out, "\n\t<compiler angle=\"radian\"/>")
	assert.Contains(t, out, "\n\t\t<geom name=\"g\"/>")
}

func TestSerialize_LeavesLiveTreeUsable(t *testing.T) {
	doc := parse(t, `<mujoco><worldbody/></mujoco>`)
	first, err := doc.Serialize()
	require.NoError(t, err)

	// Serialization indents a copy, not the tree itself.
	second, err := doc.Serialize()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, []string{"worldbody"}, childTags(doc))
}

func TestWriteFile_RoundTrips(t *testing.T) {
	fsys := memfs.New()
	doc := parse(t, `<mujoco><worldbody/></mujoco>`)

	require.NoError(t, doc.WriteFile(fsys, "/out/model.xml"))

	data, err := util.ReadFile(fsys, "/out/model.xml")
	require.NoError(t, err)
	reread, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "mujoco", reread.Root().Tag)
}

func TestFromRoot_AdoptsElement(t *testing.T) {
	src := parse(t, `<mujoco><compiler/></mujoco>`)
	doc := FromRoot(src.Root().Copy())
	assert.Equal(t, "mujoco", doc.Root().Tag)
	assert.NotNil(t, doc.Compiler())
}
