// Package draft models the raw form of a rich-text editor document: a list
// of text blocks plus an entity map for embedded media and links.
package draft

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"threadlink/internal/domain"
)

// ChangeType is the kind of the last edit applied to a document.
type ChangeType string

const (
	InsertCharacters   ChangeType = "insert-characters"
	BackspaceCharacter ChangeType = "backspace-character"
	SplitBlock         ChangeType = "split-block"
	InsertFragment     ChangeType = "insert-fragment"
	ApplyEntity        ChangeType = "apply-entity"
)

// IsTyping reports whether the change came from natural typing.
func (c ChangeType) IsTyping() bool {
	return c == InsertCharacters || c == BackspaceCharacter
}

// Document is the view of editor state the rest of the code depends on.
type Document interface {
	LastChangeType() ChangeType
	PlainText() string
}

const (
	EntityImage = "image"
	EntityLink  = "LINK"

	// dataFile is the entity data key holding a locally staged upload.
	dataFile = "file"
)

type EntityRange struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
	Key    int `json:"key"`
}

type Block struct {
	Key          string        `json:"key"`
	Text         string        `json:"text"`
	Type         string        `json:"type"`
	Depth        int           `json:"depth"`
	EntityRanges []EntityRange `json:"entityRanges"`
}

type Entity struct {
	Type       string         `json:"type"`
	Mutability string         `json:"mutability"`
	Data       map[string]any `json:"data"`
}

// Raw is the serializable document.
type Raw struct {
	Blocks    []Block           `json:"blocks"`
	EntityMap map[string]Entity `json:"entityMap"`
}

// FromText builds a document with one unstyled block per line.
func FromText(text string) Raw {
	lines := strings.Split(text, "\n")
	raw := Raw{Blocks: make([]Block, 0, len(lines)), EntityMap: map[string]Entity{}}
	for i, line := range lines {
		raw.Blocks = append(raw.Blocks, Block{
			Key:          "b" + strconv.Itoa(i),
			Text:         line,
			Type:         "unstyled",
			EntityRanges: []EntityRange{},
		})
	}
	return raw
}

// PlainText joins block texts with newlines.
func (r Raw) PlainText() string {
	texts := make([]string, len(r.Blocks))
	for i, b := range r.Blocks {
		texts[i] = b.Text
	}
	return strings.Join(texts, "\n")
}

// AddImage appends an atomic block holding an image entity. A non-nil upload
// marks the image as staged locally.
func (r Raw) AddImage(src string, upload *domain.FileUpload) Raw {
	out := Raw{
		Blocks:    append([]Block(nil), r.Blocks...),
		EntityMap: make(map[string]Entity, len(r.EntityMap)+1),
	}
	for k, v := range r.EntityMap {
		out.EntityMap[k] = v
	}

	key := 0
	for k := range out.EntityMap {
		if n, err := strconv.Atoi(k); err == nil && n >= key {
			key = n + 1
		}
	}
	data := map[string]any{"src": src}
	if upload != nil {
		data[dataFile] = upload
	}
	out.EntityMap[strconv.Itoa(key)] = Entity{Type: EntityImage, Mutability: "IMMUTABLE", Data: data}
	out.Blocks = append(out.Blocks, Block{
		Key:          "b" + strconv.Itoa(len(out.Blocks)),
		Text:         " ",
		Type:         "atomic",
		EntityRanges: []EntityRange{{Offset: 0, Length: 1, Key: key}},
	})
	return out
}

// State is an editor snapshot: the document plus the last change applied.
type State struct {
	Raw    Raw
	Change ChangeType
}

// NewState wraps raw with the given change type.
func NewState(raw Raw, change ChangeType) State {
	return State{Raw: raw, Change: change}
}

// Typed is shorthand for a state whose text was just typed.
func Typed(text string) State {
	return State{Raw: FromText(text), Change: InsertCharacters}
}

func (s State) LastChangeType() ChangeType { return s.Change }
func (s State) PlainText() string          { return s.Raw.PlainText() }

// Parse decodes a serialized body. An empty body yields an empty document.
func Parse(body string) (Raw, error) {
	if strings.TrimSpace(body) == "" {
		return FromText(""), nil
	}
	var raw Raw
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Raw{}, fmt.Errorf("failed to parse document body: %w", err)
	}
	if raw.EntityMap == nil {
		raw.EntityMap = map[string]Entity{}
	}
	return raw, nil
}

// Serialize encodes raw as JSON. Staged uploads are stripped from entity data
// since they travel separately.
func Serialize(raw Raw) (string, error) {
	clean := Raw{Blocks: raw.Blocks, EntityMap: make(map[string]Entity, len(raw.EntityMap))}
	for k, e := range raw.EntityMap {
		data := make(map[string]any, len(e.Data))
		for dk, dv := range e.Data {
			if _, staged := stagedFile(dv); staged && dk == dataFile {
				continue
			}
			data[dk] = dv
		}
		e.Data = data
		clean.EntityMap[k] = e
	}
	if clean.Blocks == nil {
		clean.Blocks = []Block{}
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return string(b), nil
}

// StagedUploads returns the local files referenced by image entities, in
// entity key order.
func StagedUploads(raw Raw) []domain.FileUpload {
	keys := make([]string, 0, len(raw.EntityMap))
	for k := range raw.EntityMap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})

	var uploads []domain.FileUpload
	for _, k := range keys {
		e := raw.EntityMap[k]
		if e.Type != EntityImage {
			continue
		}
		if f, ok := stagedFile(e.Data[dataFile]); ok {
			uploads = append(uploads, f)
		}
	}
	return uploads
}

func stagedFile(v any) (domain.FileUpload, bool) {
	switch f := v.(type) {
	case domain.FileUpload:
		return f, true
	case *domain.FileUpload:
		if f != nil {
			return *f, true
		}
	}
	return domain.FileUpload{}, false
}
