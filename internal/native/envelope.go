package native

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidEnvelope is returned for change envelopes that cannot be decoded.
var ErrInvalidEnvelope = errors.New("invalid change envelope")

// Envelope is the wire form of a Change written by the browser host.
//
//	{"type": "move", "id": "abc", "info": {"parentId": "...", ...}}
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Info json.RawMessage `json:"info,omitempty"`
}

type removeInfo struct {
	ParentID string `json:"parentId"`
	Index    int    `json:"index"`
	Node     *Node  `json:"node,omitempty"`
}

type moveInfo struct {
	ParentID    string `json:"parentId"`
	Index       int    `json:"index"`
	OldParentID string `json:"oldParentId"`
	OldIndex    int    `json:"oldIndex"`
}

type reorderInfo struct {
	ChildIDs []string `json:"childIds"`
}

// Encode serializes a Change into its envelope form.
func Encode(c Change) ([]byte, error) {
	var info any
	switch ch := c.(type) {
	case *AddChange:
		info = ch.Node
	case *ModifyChange:
		info = ch.Node
	case *RemoveChange:
		info = removeInfo{ParentID: ch.ParentID, Index: ch.Index, Node: ch.Node}
	case *MoveChange:
		info = moveInfo{ParentID: ch.ParentID, Index: ch.Index, OldParentID: ch.OldParentID, OldIndex: ch.OldIndex}
	case *ReorderChange:
		info = reorderInfo{ChildIDs: ch.ChildIDs}
	default:
		return nil, errors.Wrapf(ErrInvalidEnvelope, "unsupported change %T", c)
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal change info")
	}
	return json.Marshal(Envelope{Type: c.Type().String(), ID: c.NativeID(), Info: raw})
}

// Decode parses an envelope into a Change.
func Decode(data []byte) (Change, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrapf(ErrInvalidEnvelope, "parse: %v", err)
	}
	if env.ID == "" {
		return nil, errors.Wrap(ErrInvalidEnvelope, "id is required")
	}
	typ, ok := ParseChangeType(env.Type)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidEnvelope, "unknown change type %q", env.Type)
	}
	info := env.Info
	if len(info) == 0 {
		info = json.RawMessage("{}")
	}

	switch typ {
	case ChangeAdd, ChangeModify:
		var n Node
		if err := json.Unmarshal(info, &n); err != nil {
			return nil, errors.Wrapf(ErrInvalidEnvelope, "%s info: %v", typ, err)
		}
		if n.ID == "" {
			n.ID = env.ID
		}
		if typ == ChangeAdd {
			return &AddChange{ID: env.ID, Node: n}, nil
		}
		return &ModifyChange{ID: env.ID, Node: n}, nil
	case ChangeRemove:
		var ri removeInfo
		if err := json.Unmarshal(info, &ri); err != nil {
			return nil, errors.Wrapf(ErrInvalidEnvelope, "remove info: %v", err)
		}
		return &RemoveChange{ID: env.ID, ParentID: ri.ParentID, Index: ri.Index, Node: ri.Node}, nil
	case ChangeMove:
		var mi moveInfo
		if err := json.Unmarshal(info, &mi); err != nil {
			return nil, errors.Wrapf(ErrInvalidEnvelope, "move info: %v", err)
		}
		if mi.ParentID == "" {
			return nil, errors.Wrap(ErrInvalidEnvelope, "move requires parentId")
		}
		return &MoveChange{
			ID:          env.ID,
			ParentID:    mi.ParentID,
			Index:       mi.Index,
			OldParentID: mi.OldParentID,
			OldIndex:    mi.OldIndex,
		}, nil
	default:
		var oi reorderInfo
		if err := json.Unmarshal(info, &oi); err != nil {
			return nil, errors.Wrapf(ErrInvalidEnvelope, "reorder info: %v", err)
		}
		return &ReorderChange{ParentID: env.ID, ChildIDs: oi.ChildIDs}, nil
	}
}

// SpoolFileName returns the file name used for the seq-th change in a spool
// directory. Names sort in sequence order.
func SpoolFileName(seq uint64, t ChangeType) string {
	return fmt.Sprintf("%020d--%s.json", seq, t)
}

// ReadChangeFile reads and decodes one spooled change.
func ReadChangeFile(path string) (Change, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read change file")
	}
	c, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", filepath.Base(path))
	}
	return c, nil
}

// WriteChangeFile encodes c into dir using SpoolFileName. The file is
// written under a temporary name and renamed so watchers never see a
// partial write.
func WriteChangeFile(dir string, seq uint64, c Change) (string, error) {
	data, err := Encode(c)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, SpoolFileName(seq, c.Type()))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", errors.Wrap(err, "failed to write change file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Wrap(err, "failed to rename change file")
	}
	return path, nil
}

// ListChangeFiles returns the spooled change files in dir in sequence order.
func ListChangeFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read spool directory")
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
