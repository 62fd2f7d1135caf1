package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecraft/pagecraft/internal/page"
)

func testContext() page.Map {
	return page.Map{
		"user": page.MapOf(page.Map{
			"name": page.String("Ada"),
			"age":  page.Number(42),
			"tags": page.List(page.String("admin"), page.String("ops")),
		}),
		"params": page.MapOf(page.Map{
			"id":    page.String("p-1"),
			"empty": page.Null(),
		}),
		"flag": page.Bool(true),
	}
}

func TestResolveString(t *testing.T) {
	ctx := testContext()

	testCases := []struct {
		name  string
		input string
		want  page.Value
	}{
		{"whole expression keeps number type", "{{user.age}}", page.Number(42)},
		{"whole expression with padding", "  {{ user.name }}  ", page.String("Ada")},
		{"whole expression bool", "{{flag}}", page.Bool(true)},
		{"whole expression missing is undefined", "{{user.missing}}", page.Undefined()},
		{"interpolation stringifies", "Age: {{user.age}}", page.String("Age: 42")},
		{"interpolation of missing is empty", "Hi {{nobody.here}}!", page.String("Hi !")},
		{"interpolation of null is empty", "[{{params.empty}}]", page.String("[]")},
		{"two bindings interpolate", "{{user.name}}{{user.age}}", page.String("Ada42")},
		{"list index", "{{user.tags[1]}}", page.String("ops")},
		{"dotted list index", "{{user.tags.0}}", page.String("admin")},
		{"list interpolation joins", "tags={{user.tags}}", page.String("tags=admin,ops")},
		{"plain string untouched", "hello", page.String("hello")},
		{"unbalanced braces untouched", "{{ user.name", page.String("{{ user.name")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveString(tc.input, ctx)
			assert.True(t, tc.want.Equal(got), "want %#v, got %#v", tc.want.Any(), got.Any())
		})
	}
}

func TestResolve_NonStringUnchanged(t *testing.T) {
	ctx := testContext()
	assert.True(t, page.Number(3).Equal(Resolve(page.Number(3), ctx)))
	assert.True(t, page.Null().Equal(Resolve(page.Null(), ctx)))
}

func TestResolveMap_Deep(t *testing.T) {
	props := page.Map{
		"title": page.String("Hello {{user.name}}"),
		"count": page.String("{{user.age}}"),
		"nested": page.MapOf(page.Map{
			"id": page.String("{{params.id}}"),
		}),
		"columns": page.List(
			page.MapOf(page.Map{"header": page.String("{{user.name}}")}),
			page.String("{{flag}}"),
			page.Number(7),
		),
		"static": page.Bool(false),
	}

	out := ResolveMap(props, testContext())

	assert.Equal(t, "Hello Ada", out.Get("title").StringOr(""))
	n, ok := out.Get("count").AsNumber()
	require.True(t, ok)
	assert.Equal(t, 42.0, n)

	nested, ok := out.Get("nested").AsMap()
	require.True(t, ok)
	assert.Equal(t, "p-1", nested.Get("id").StringOr(""))

	cols, ok := out.Get("columns").AsList()
	require.True(t, ok)
	first, _ := cols[0].AsMap()
	assert.Equal(t, "Ada", first.Get("header").StringOr(""))
	b, _ := cols[1].AsBool()
	assert.True(t, b)
	assert.True(t, page.Number(7).Equal(cols[2]))

	// the input is not modified
	assert.Equal(t, "Hello {{user.name}}", props.Get("title").StringOr(""))
}

func TestLookup(t *testing.T) {
	ctx := testContext()

	assert.Equal(t, "Ada", Lookup(ctx, "user.name").StringOr(""))
	assert.Equal(t, "admin", Lookup(ctx, "user['tags'][0]").StringOr(""))
	assert.True(t, Lookup(ctx, "").IsUndefined())
	assert.True(t, Lookup(ctx, "user.tags[5]").IsUndefined())
	assert.True(t, Lookup(ctx, "user.name.first").IsUndefined())
	assert.True(t, Lookup(nil, "x").IsUndefined())
}
