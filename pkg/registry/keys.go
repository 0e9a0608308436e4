package registry

import "fmt"

// Key layout in the process-wide registry store:
//
//	project/ids          -> ["<uuid>", ...]
//	project/<uuid>        -> serialized Project
//	workspace/ids         -> ["<uuid>", ...]
//	workspace/<uuid>       -> serialized Workspace

func projectIDsKey() []byte { return []byte("project/ids") }

func projectKey(id string) []byte { return []byte(fmt.Sprintf("project/%s", id)) }

func workspaceIDsKey() []byte { return []byte("workspace/ids") }

func workspaceKey(id string) []byte { return []byte(fmt.Sprintf("workspace/%s", id)) }
