// Package ocr - tree.go walks decoded JSON payloads looking for known shapes.
//
// DESIGN: tRPC batches nest the interesting objects at arbitrary depth, so
// detection is a recursive visit over the whole tree with pure predicates:
//   - walkTree:  over a decoded any-tree (maps are mutated in place)
//   - walkJSON:  over gjson results, in document order (positional pairing)
//
// A visitor returns true to stop the walk early.
package ocr

import (
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// walkTree visits every object in node depth first. The object itself is
// visited before its children, and object keys are descended in sorted order.
// Returns true if visit stopped the walk.
func walkTree(node any, visit func(obj map[string]any) bool) bool {
	switch v := node.(type) {
	case map[string]any:
		if visit(v) {
			return true
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if walkTree(v[k], visit) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if walkTree(child, visit) {
				return true
			}
		}
	}
	return false
}

// walkJSON is walkTree for gjson results, preserving key order.
func walkJSON(node gjson.Result, visit func(obj gjson.Result) bool) bool {
	switch {
	case node.IsObject():
		if visit(node) {
			return true
		}
		stopped := false
		node.ForEach(func(_, child gjson.Result) bool {
			stopped = walkJSON(child, visit)
			return !stopped
		})
		return stopped
	case node.IsArray():
		stopped := false
		node.ForEach(func(_, child gjson.Result) bool {
			stopped = walkJSON(child, visit)
			return !stopped
		})
		return stopped
	}
	return false
}

// =============================================================================
// SEND MESSAGE
// =============================================================================

// isSendMessage matches {newUserMessage:{content:string,...}, newAssistantMessage:{...}}.
func isSendMessage(obj map[string]any) bool {
	user, ok := obj["newUserMessage"].(map[string]any)
	if !ok {
		return false
	}
	if _, ok := user["content"].(string); !ok {
		return false
	}
	_, ok = obj["newAssistantMessage"].(map[string]any)
	return ok
}

// findSendMessages returns the newUserMessage object of every send-message payload.
func findSendMessages(root any) []map[string]any {
	var out []map[string]any
	walkTree(root, func(obj map[string]any) bool {
		if isSendMessage(obj) {
			out = append(out, obj["newUserMessage"].(map[string]any))
		}
		return false
	})
	return out
}

// messageFileIDs returns the non-empty string ids in message.files.
func messageFileIDs(message map[string]any) []string {
	files, _ := message["files"].([]any)
	var ids []string
	for _, f := range files {
		if id, ok := f.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// =============================================================================
// FILE CREATE
// =============================================================================

type createInput struct {
	fileType   string
	storageURL string
}

type createOutput struct {
	fileID string
	url    string
}

// fileCreateInputs finds upload descriptors: a string url plus any of hash,
// fileType, name (strings) or size (number).
func fileCreateInputs(root gjson.Result) []createInput {
	var out []createInput
	walkJSON(root, func(obj gjson.Result) bool {
		u := obj.Get("url")
		if u.Type != gjson.String {
			return false
		}
		if obj.Get("hash").Type == gjson.String ||
			obj.Get("fileType").Type == gjson.String ||
			obj.Get("name").Type == gjson.String ||
			obj.Get("size").Type == gjson.Number {
			out = append(out, createInput{
				fileType:   stringField(obj, "fileType"),
				storageURL: u.Str,
			})
		}
		return false
	})
	return out
}

// fileCreateOutputs finds created file records: a string id that either has a
// string url or looks like a file id.
func fileCreateOutputs(root gjson.Result) []createOutput {
	var out []createOutput
	walkJSON(root, func(obj gjson.Result) bool {
		id := obj.Get("id")
		if id.Type != gjson.String {
			return false
		}
		u := obj.Get("url")
		if u.Type == gjson.String || strings.HasPrefix(id.Str, "file_") {
			out = append(out, createOutput{fileID: id.Str, url: stringField(obj, "url")})
		}
		return false
	})
	return out
}

// FileItem is a file record returned by the app's file lookup.
type FileItem struct {
	ID       string
	FileType string
	URL      string
}

// findFileItem returns the first object with id == fileID and a string url.
func findFileItem(root gjson.Result, fileID string) (FileItem, bool) {
	var item FileItem
	found := walkJSON(root, func(obj gjson.Result) bool {
		id := obj.Get("id")
		u := obj.Get("url")
		if id.Type == gjson.String && id.Str == fileID && u.Type == gjson.String {
			item = FileItem{ID: id.Str, FileType: stringField(obj, "fileType"), URL: u.Str}
			return true
		}
		return false
	})
	return item, found
}

func stringField(obj gjson.Result, key string) string {
	if v := obj.Get(key); v.Type == gjson.String {
		return v.Str
	}
	return ""
}
