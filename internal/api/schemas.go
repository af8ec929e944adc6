package api

import (
	"cellrun/internal/exec"
	"cellrun/internal/kernel"
	"cellrun/internal/schema"

	"github.com/invopop/jsonschema"
)

const (
	SchemaExecutePayload = "execute-payload"
	SchemaCellStatus     = "cell-status"
	SchemaKernelSpec     = "kernel-spec"
)

func init() {
	_ = schema.Register(SchemaExecutePayload, executePayloadSchema)
	_ = schema.Register(SchemaCellStatus, cellStatusSchema)
	_ = schema.Register(SchemaKernelSpec, kernelSpecSchema)
}

func executePayloadSchema() *jsonschema.Schema {
	return schema.Generate(ExecutePayload{})
}

func cellStatusSchema() *jsonschema.Schema {
	return schema.Generate(exec.CellStatus{})
}

func kernelSpecSchema() *jsonschema.Schema {
	return schema.Generate(kernel.Spec{})
}
