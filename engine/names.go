package engine

import (
	"fmt"
	"os"
	"strings"
)

// ObjectTypeResolver maps class ids to labels; line i of the names file is
// the label of class i.
type ObjectTypeResolver struct {
	names []string
}

func NewObjectTypeResolver(namesFile string) (*ObjectTypeResolver, error) {
	names, err := readNames(namesFile)
	if err != nil {
		return nil, fmt.Errorf("%w: names file %s: %v", ErrFileNotFound, namesFile, err)
	}
	return &ObjectTypeResolver{names: names}, nil
}

func NewObjectTypeResolverFromNames(names []string) *ObjectTypeResolver {
	return &ObjectTypeResolver{names: append([]string(nil), names...)}
}

// Resolve returns the label for classID, or ErrUnknownClass when classID is
// outside the loaded names.
func (r *ObjectTypeResolver) Resolve(classID int) (string, error) {
	if classID < 0 || classID >= len(r.names) {
		return "", fmt.Errorf("%w: id %d, %d names loaded", ErrUnknownClass, classID, len(r.names))
	}
	return r.names[classID], nil
}

func (r *ObjectTypeResolver) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *ObjectTypeResolver) Len() int {
	return len(r.names)
}

func readNames(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// CRLF tolerant
	raw := strings.Split(string(b), "\n")
	for i := range raw {
		raw[i] = strings.TrimSpace(strings.TrimRight(raw[i], "\r"))
	}
	// only trailing blanks go; inner ones keep the indices aligned
	end := len(raw)
	for end > 0 && raw[end-1] == "" {
		end--
	}
	return raw[:end], nil
}
