package server

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"wly/internal/handle"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	path := uriToPath(params.TextDocument.URI)
	line := int(params.Position.Line)
	col := int(params.Position.Character)

	ref, ok := s.index.ReferenceAt(path, line, col)
	if !ok {
		return nil, nil
	}
	defs := s.index.FindValidDefinitions(ref.Name, path)
	switch len(defs) {
	case 0:
		return nil, nil
	case 1:
		return protocol.Location{
			URI:   pathToURI(defs[0].Path),
			Range: toProtocolRange(defs[0].Range),
		}, nil
	}
	locations := make([]protocol.Location, 0, len(defs))
	for _, def := range defs {
		locations = append(locations, protocol.Location{
			URI:   pathToURI(def.Path),
			Range: toProtocolRange(def.Range),
		})
	}
	return locations, nil
}

func (s *Server) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	path := uriToPath(params.TextDocument.URI)
	line := int(params.Position.Line)
	col := int(params.Position.Character)

	var name string
	if ref, ok := s.index.ReferenceAt(path, line, col); ok {
		name = ref.Name
	} else if def, ok := s.index.DefinitionAt(path, line, col); ok {
		name = def.Name
	} else {
		return nil, nil
	}

	var locations []protocol.Location
	if params.Context.IncludeDeclaration {
		for _, def := range s.index.FindValidDefinitions(name, path) {
			locations = append(locations, protocol.Location{
				URI:   pathToURI(def.Path),
				Range: toProtocolRange(def.Range),
			})
		}
	}
	for _, ref := range s.index.ReferencesTo(name, path) {
		locations = append(locations, protocol.Location{
			URI:   pathToURI(ref.Path),
			Range: toProtocolRange(ref.Range),
		})
	}
	return locations, nil
}

func (s *Server) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	path := uriToPath(params.TextDocument.URI)
	defs, _ := s.index.DocumentEntries(path)
	if len(defs) == 0 {
		return nil, nil
	}
	symbols := make([]protocol.DocumentSymbol, 0, len(defs))
	for _, def := range defs {
		r := toProtocolRange(def.Range)
		symbols = append(symbols, protocol.DocumentSymbol{
			Name:           def.Name,
			Kind:           protocol.SymbolKindKey,
			Range:          r,
			SelectionRange: r,
		})
	}
	return symbols, nil
}

func (s *Server) workspaceSymbol(ctx *glsp.Context, params *protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error) {
	maxResults := 128
	defs := s.index.AllDefinitions()

	byName := make(map[string][]handle.Definition, len(defs))
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if _, ok := byName[def.Name]; !ok {
			names = append(names, def.Name)
		}
		byName[def.Name] = append(byName[def.Name], def)
	}

	hits := names
	if params.Query != "" {
		k := 2 // tolerate up to 2 typos
		hits = filterByBitapFuzzyParallel(params.Query, names, k, maxResults)
	}

	var symbols []protocol.SymbolInformation
	for _, name := range hits {
		for _, def := range byName[name] {
			symbols = append(symbols, protocol.SymbolInformation{
				Name: def.Name,
				Kind: protocol.SymbolKindKey,
				Location: protocol.Location{
					URI:   pathToURI(def.Path),
					Range: toProtocolRange(def.Range),
				},
			})
			if len(symbols) >= maxResults {
				return symbols, nil
			}
		}
	}
	return symbols, nil
}

// textDocumentDocumentLink marks every resolved reference as a link to
// its defining document.
func (s *Server) textDocumentDocumentLink(ctx *glsp.Context, params *protocol.DocumentLinkParams) ([]protocol.DocumentLink, error) {
	path := uriToPath(params.TextDocument.URI)
	_, refs := s.index.DocumentEntries(path)

	var links []protocol.DocumentLink
	for _, ref := range refs {
		defs := s.index.FindValidDefinitions(ref.Name, path)
		if len(defs) != 1 {
			continue
		}
		target := pathToURI(defs[0].Path)
		tooltip := s.relPath(defs[0].Path)
		links = append(links, protocol.DocumentLink{
			Range:   toProtocolRange(ref.Range),
			Target:  &target,
			Tooltip: &tooltip,
		})
	}
	return links, nil
}

// filterByBitapFuzzyParallel filters names by approximate Bitap matching with k errors
func filterByBitapFuzzyParallel(pattern string, names []string, k, maxHits int) []string {
	if utf8.RuneCountInString(pattern) == 0 {
		return nil
	}

	patternRunes := []rune(pattern)
	m := len(patternRunes)
	if m > 63 {
		patternRunes = patternRunes[:63]
		m = 63
	}

	var masks [128]uint64
	for i, r := range patternRunes {
		if r < 128 {
			masks[r] |= 1 << uint(i)
		}
	}

	highest := uint64(1) << uint(m-1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan string, maxHits)
	var hitCount int32

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))

	for _, name := range names {
		if atomic.LoadInt32(&hitCount) >= int32(maxHits) || ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(text string) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			if bitapFuzzyMatch(text, masks, highest, k) {
				count := atomic.AddInt32(&hitCount, 1)
				if count <= int32(maxHits) {
					results <- text
					if count == int32(maxHits) {
						cancel()
					}
				}
			}
		}(name)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var filtered []string
	for name := range results {
		filtered = append(filtered, name)
	}
	return filtered
}

// bitapFuzzyMatch returns true if pattern appears in text with at most k errors
func bitapFuzzyMatch(text string, masks [128]uint64, highest uint64, k int) bool {
	r := make([]uint64, k+1)

	for _, cr := range text {
		var charMask uint64
		if cr < 128 {
			charMask = masks[cr]
		}

		r0 := ((r[0] << 1) | 1) & charMask
		r[0] = r0

		prevRd1 := r0
		for d := 1; d <= k; d++ {
			// match or substitution, insertion, deletion
			rx := ((r[d] << 1) | 1) & charMask
			xi := (r[d] << 1) | 1
			xd := prevRd1

			newRd := rx | xi | xd
			prevRd1 = r[d]
			r[d] = newRd
		}

		for d := 0; d <= k; d++ {
			if (r[d] & highest) != 0 {
				return true
			}
		}
	}
	return false
}
