package manifest

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains the raw kuro.toml document. Definitions are
// closed, so misspelled keys are rejected rather than silently ignored.
const schemaSource = `
#Manifest: {
	project?: {
		name?:    string & =~"^[A-Za-z_][A-Za-z0-9_.-]*$"
		version?: string
		entry?:   string & =~"\\.kr$"
	}
	compiler?: {
		disassemble?:  bool
		"trace-scan"?: bool
		"trace-exec"?: bool
		"stress-gc"?:  bool
	}
	cache?: {
		enabled?: bool
		path?:    string & !=""
	}
	server?: {
		addr?:             string & =~":[0-9]+$"
		"grpc-addr"?:      string & =~":[0-9]+$"
		"memory-modules"?: int & >=1
	}
}
`

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// A cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func manifestSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("kuro.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("manifest schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Manifest"))
		schemaErr = schemaDef.Err()
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks a decoded kuro.toml document against the manifest schema.
func Validate(doc map[string]interface{}) error {
	ctx, def, err := manifestSchema()
	if err != nil {
		return err
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}
