// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package knowledge stores namespaced reference documents as searchable
// chunks: policy texts, rule rationales and investigation notes agents
// retrieve during reasoning.
package knowledge

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// targetChars is the per-chunk target (~256 tokens).
	targetChars = 1024

	// maxChars is the hard per-chunk cap (~512 tokens).
	maxChars = 2048

	// overlapSentences carried from the previous chunk into the next.
	overlapSentences = 2

	// mergeRemainderRatio: a trailing chunk smaller than this share of
	// the target merges into its predecessor when the cap allows.
	mergeRemainderRatio = 0.3
)

// Chunk is one indexed fragment of a document.
type Chunk struct {
	ChunkID       string                 `json:"chunkId"`
	ParentID      string                 `json:"parentId"`
	ChunkIndex    int                    `json:"chunkIndex"`
	TotalChunks   int                    `json:"totalChunks"`
	Text          string                 `json:"text"`
	TokenEstimate int                    `json:"tokenEstimate"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
}

var sentenceRe = regexp.MustCompile(`[.!?]\s+`)

// splitSentences cuts text at punctuation followed by whitespace,
// keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var out []string
	start := 0
	for _, loc := range locs {
		out = append(out, strings.TrimSpace(text[start:loc[0]+1]))
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// ChunkText splits a document into overlapping chunks. Single-sentence
// text falls back to character splitting at the nearest space.
func ChunkText(text, parentID string, meta map[string]interface{}) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	var pieces []string
	if len(sentences) <= 1 {
		pieces = splitByChars(text)
	} else {
		pieces = groupSentences(sentences)
	}
	pieces = mergeSmallRemainder(pieces)

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			ChunkID:       uuid.New().String(),
			ParentID:      parentID,
			ChunkIndex:    i,
			TotalChunks:   len(pieces),
			Text:          piece,
			TokenEstimate: len(piece) / 4,
			Meta:          meta,
		}
	}
	return chunks
}

// groupSentences packs sentences to the target size, carrying a
// two-sentence overlap between consecutive chunks.
func groupSentences(sentences []string) []string {
	var pieces []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		pieces = append(pieces, strings.Join(current, " "))
		// Seed the next chunk with the trailing overlap.
		overlapStart := len(current) - overlapSentences
		if overlapStart < 0 {
			overlapStart = 0
		}
		tail := current[overlapStart:]
		current = append([]string(nil), tail...)
		currentLen = 0
		for _, s := range current {
			currentLen += len(s) + 1
		}
	}

	for _, sentence := range sentences {
		if currentLen > 0 && currentLen+len(sentence) > targetChars {
			flush()
		}
		current = append(current, sentence)
		currentLen += len(sentence) + 1
	}
	if len(current) > 0 {
		piece := strings.Join(current, " ")
		// Skip the flush-seeded overlap if nothing new was added.
		if len(pieces) == 0 || !strings.HasSuffix(pieces[len(pieces)-1], piece) {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}

// splitByChars cuts at the nearest space before the target size.
func splitByChars(text string) []string {
	var pieces []string
	for len(text) > targetChars {
		cut := strings.LastIndex(text[:targetChars], " ")
		if cut <= 0 {
			cut = targetChars
		}
		pieces = append(pieces, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// mergeSmallRemainder folds a short trailing piece into its predecessor
// when the merged piece stays within the cap.
func mergeSmallRemainder(pieces []string) []string {
	if len(pieces) < 2 {
		return pieces
	}
	last := pieces[len(pieces)-1]
	prev := pieces[len(pieces)-2]
	if float64(len(last)) < mergeRemainderRatio*targetChars && len(prev)+len(last)+1 <= maxChars {
		pieces[len(pieces)-2] = prev + " " + last
		pieces = pieces[:len(pieces)-1]
	}
	return pieces
}
