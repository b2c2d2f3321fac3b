package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/mmdatafocus/shopledger_backend/config"
	"github.com/mmdatafocus/shopledger_backend/models"
	"github.com/mmdatafocus/shopledger_backend/utils"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

//go:embed schema.graphqls
var schemaSDL string

// SchemaSDL is the schema document served next to the endpoint; introspection queries
// are not answered.
func SchemaSDL() string { return schemaSDL }

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSDL})

// fieldFunc resolves a Query or Mutation field from its coerced arguments.
type fieldFunc func(ctx context.Context, args map[string]any) (any, error)

// objectFieldFunc resolves a field that is not a plain property of the parent's JSON form.
type objectFieldFunc func(ctx context.Context, obj map[string]any) (any, error)

type executableSchema struct {
	resolver *Resolver
	roots    map[ast.Operation]map[string]fieldFunc
	objects  map[string]map[string]objectFieldFunc
}

// NewExecutableSchema serves the ledger schema from the resolver's workflow service.
// Results are rendered from the models' JSON form, so schema field names follow the
// models' json tags.
func NewExecutableSchema(r *Resolver) graphql.ExecutableSchema {
	if r.Logger == nil {
		r.Logger = config.GetLogger()
	}
	return &executableSchema{
		resolver: r,
		roots: map[ast.Operation]map[string]fieldFunc{
			ast.Query:    r.queryFields(),
			ast.Mutation: r.mutationFields(),
		},
		objects: r.objectFields(),
	}
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, rawArgs map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false

		roots, ok := e.roots[opCtx.Operation.Operation]
		if !ok {
			return graphql.ErrorResponse(ctx, "unsupported GraphQL operation")
		}
		typeName := "Query"
		if opCtx.Operation.Operation == ast.Mutation {
			typeName = "Mutation"
		}
		ex := &execution{executableSchema: e, opCtx: opCtx}
		data := ex.root(ctx, typeName, roots)
		return &graphql.Response{Data: data, Errors: ex.errors}
	}
}

// execution renders one operation. List elements of object type render concurrently so
// dataloader lookups made by their fields land in the same batch.
type execution struct {
	*executableSchema
	opCtx *graphql.OperationContext

	mu     sync.Mutex
	errors gqlerror.List
}

func (ex *execution) root(ctx context.Context, typeName string, roots map[string]fieldFunc) json.RawMessage {
	var buf bytes.Buffer
	fields := graphql.CollectFields(ex.opCtx, ex.opCtx.Operation.SelectionSet, []string{typeName})
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, f.Alias)
		path := ast.Path{ast.PathName(f.Alias)}

		switch f.Name {
		case "__typename":
			writeJSON(&buf, typeName)
			continue
		case "__schema", "__type":
			ex.fail(path, models.Validation("introspection is not available; fetch the schema document instead"))
			buf.WriteString("null")
			continue
		}
		resolve := roots[f.Name]
		if resolve == nil {
			ex.fail(path, models.Validation("field %s.%s is not served", typeName, f.Name))
			buf.WriteString("null")
			continue
		}
		value, err := ex.resolveRoot(ctx, typeName, f, resolve)
		if err != nil {
			ex.fail(path, err)
			buf.WriteString("null")
			continue
		}
		ex.writeValue(ctx, &buf, path, f.Definition.Type, value, f.Selections)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func (ex *execution) resolveRoot(ctx context.Context, typeName string, f graphql.CollectedField, resolve fieldFunc) (any, error) {
	args, err := ex.coerceArgs(f.Definition, f.ArgumentMap(ex.opCtx.Variables))
	if err != nil {
		return nil, err
	}
	fc := &graphql.FieldContext{
		Object:     typeName,
		Field:      f,
		Args:       args,
		IsMethod:   true,
		IsResolver: true,
	}
	ctx = graphql.WithFieldContext(ctx, fc)
	next := func(rctx context.Context) (interface{}, error) {
		return resolve(rctx, args)
	}
	var out interface{}
	if ex.opCtx.ResolverMiddleware != nil {
		out, err = ex.opCtx.ResolverMiddleware(ctx, next)
	} else {
		out, err = next(ctx)
	}
	if err != nil {
		return nil, err
	}
	return toGeneric(out)
}

func (ex *execution) writeValue(ctx context.Context, buf *bytes.Buffer, path ast.Path, t *ast.Type, v any, sel ast.SelectionSet) {
	if v == nil {
		if t.NonNull && t.Elem != nil {
			buf.WriteString("[]")
		} else {
			buf.WriteString("null")
		}
		return
	}
	if t.Elem != nil {
		list, ok := v.([]any)
		if !ok {
			ex.fail(path, fmt.Errorf("expected a list for %s", t.String()))
			buf.WriteString("null")
			return
		}
		ex.writeList(ctx, buf, path, t.Elem, list, sel)
		return
	}
	def := parsedSchema.Types[t.NamedType]
	if def != nil && def.Kind == ast.Object {
		obj, ok := v.(map[string]any)
		if !ok {
			ex.fail(path, fmt.Errorf("expected an object for %s", def.Name))
			buf.WriteString("null")
			return
		}
		ex.writeObject(ctx, buf, path, def, obj, sel)
		return
	}
	writeJSON(buf, v)
}

func (ex *execution) writeList(ctx context.Context, buf *bytes.Buffer, path ast.Path, elem *ast.Type, list []any, sel ast.SelectionSet) {
	parts := make([]bytes.Buffer, len(list))
	if def := parsedSchema.Types[elem.Name()]; def != nil && def.Kind == ast.Object && len(list) > 1 {
		var wg sync.WaitGroup
		for i := range list {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ex.writeValue(ctx, &parts[i], appendPath(path, ast.PathIndex(i)), elem, list[i], sel)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range list {
			ex.writeValue(ctx, &parts[i], appendPath(path, ast.PathIndex(i)), elem, list[i], sel)
		}
	}
	buf.WriteByte('[')
	for i := range parts {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(parts[i].Bytes())
	}
	buf.WriteByte(']')
}

func (ex *execution) writeObject(ctx context.Context, buf *bytes.Buffer, path ast.Path, def *ast.Definition, obj map[string]any, sel ast.SelectionSet) {
	fields := graphql.CollectFields(ex.opCtx, sel, []string{def.Name})
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(buf, f.Alias)
		fieldPath := appendPath(path, ast.PathName(f.Alias))
		if f.Name == "__typename" {
			writeJSON(buf, def.Name)
			continue
		}
		value := obj[f.Name]
		if resolve := ex.objects[def.Name][f.Name]; resolve != nil {
			out, err := resolve(ctx, obj)
			if err == nil {
				value, err = toGeneric(out)
			}
			if err != nil {
				ex.fail(fieldPath, err)
				buf.WriteString("null")
				continue
			}
		}
		ex.writeValue(ctx, buf, fieldPath, f.Definition.Type, value, f.Selections)
	}
	buf.WriteByte('}')
}

func (ex *execution) fail(path ast.Path, err error) {
	kind := string(models.KindOf(err))
	if kind == "" || kind == string(models.ErrorKindStoreUnavailable) {
		config.LogError(ex.resolver.Logger, "executor.go", "resolve", path.String(), nil, err)
	}
	if kind == "" {
		kind = "Internal"
	}
	gqlErr := &gqlerror.Error{
		Message:    err.Error(),
		Path:       path,
		Extensions: map[string]interface{}{"kind": kind},
	}
	ex.mu.Lock()
	ex.errors = append(ex.errors, gqlErr)
	ex.mu.Unlock()
}

func (e *executableSchema) coerceArgs(def *ast.FieldDefinition, raw map[string]interface{}) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for name, v := range raw {
		arg := def.Arguments.ForName(name)
		if arg == nil {
			out[name] = v
			continue
		}
		coerced, err := coerceInput(arg.Type, v)
		if err != nil {
			return nil, models.Validation("argument %s: %v", name, err)
		}
		out[name] = coerced
	}
	return out, nil
}

// coerceInput normalizes custom scalars inside an input value: Decimal accepts numbers and
// shop-formatted strings, ID accepts numbers.
func coerceInput(t *ast.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t.Elem != nil {
		list, ok := v.([]interface{})
		if !ok {
			one, err := coerceInput(t.Elem, v)
			if err != nil {
				return nil, err
			}
			return []any{one}, nil
		}
		out := make([]any, len(list))
		for i, item := range list {
			c, err := coerceInput(t.Elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	switch t.NamedType {
	case "Decimal":
		d, err := utils.ParseAmount(v)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	case "ID":
		return fmt.Sprint(v), nil
	}
	def := parsedSchema.Types[t.NamedType]
	obj, ok := v.(map[string]interface{})
	if def == nil || def.Kind != ast.InputObject || !ok {
		return v, nil
	}
	out := make(map[string]any, len(obj))
	for name, fv := range obj {
		fd := def.Fields.ForName(name)
		if fd == nil {
			out[name] = fv
			continue
		}
		c, err := coerceInput(fd.Type, fv)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = c
	}
	return out, nil
}

// toGeneric turns a resolver result into its JSON form of maps, slices and json.Number.
func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// bind decodes a coerced argument into a workflow input struct.
func bind(v any, dst any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return models.Validation("invalid value for %s", typeErr.Field)
		}
		return models.Validation("invalid input: %v", err)
	}
	return nil
}

func appendPath(path ast.Path, elem ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

func writeKey(buf *bytes.Buffer, key string) {
	writeJSON(buf, key)
	buf.WriteByte(':')
}

func writeJSON(buf *bytes.Buffer, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		buf.WriteString("null")
		return
	}
	buf.Write(raw)
}
