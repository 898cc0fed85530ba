package tools

import (
	"os"
	"path/filepath"
	"sort"

	geptools "github.com/go-go-golems/geppetto/pkg/inference/tools"
	"github.com/pkg/errors"
)

type ReadFileRequest struct {
	Path string `json:"path" jsonschema:"required,description=Path of the file to read"`
}

type ReadFileResponse struct {
	Content string `json:"content"`
}

type ListDirRequest struct {
	Path string `json:"path" jsonschema:"required,description=Directory to list"`
}

type ListDirResponse struct {
	Entries []string `json:"entries"`
}

func readFileTool(req ReadFileRequest) (ReadFileResponse, error) {
	b, err := os.ReadFile(filepath.Clean(req.Path))
	if err != nil {
		return ReadFileResponse{}, errors.Wrap(err, "read file")
	}
	return ReadFileResponse{Content: string(b)}, nil
}

func listDirTool(req ListDirRequest) (ListDirResponse, error) {
	entries, err := os.ReadDir(filepath.Clean(req.Path))
	if err != nil {
		return ListDirResponse{}, errors.Wrap(err, "list dir")
	}
	ret := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ListDirResponse{Entries: ret}, nil
}

// NewBuiltinRegistry registers the file tools the coding agent exposes.
func NewBuiltinRegistry() (*geptools.InMemoryToolRegistry, error) {
	registry := geptools.NewInMemoryToolRegistry()

	readDef, err := geptools.NewToolFromFunc("read_file", "Read the content of a file in the workspace", readFileTool)
	if err != nil {
		return nil, errors.Wrap(err, "read_file tool")
	}
	if err := registry.RegisterTool("read_file", *readDef); err != nil {
		return nil, errors.Wrap(err, "register read_file tool")
	}

	listDef, err := geptools.NewToolFromFunc("list_dir", "List the entries of a workspace directory", listDirTool)
	if err != nil {
		return nil, errors.Wrap(err, "list_dir tool")
	}
	if err := registry.RegisterTool("list_dir", *listDef); err != nil {
		return nil, errors.Wrap(err, "register list_dir tool")
	}
	return registry, nil
}
