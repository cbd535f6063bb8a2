package gossip

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// writeFileAtomic writes data to path via a temp file plus rename, so a
// crash mid-write never leaves a truncated peers.json behind. Same
// pattern as the teacher's node.writeFileAtomic.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// savePeers persists the current known-peers set to e.peersFile.
func (e *Engine) savePeers() {
	e.mu.Lock()
	uris := make([]string, 0, len(e.knownPeers))
	for uri := range e.knownPeers {
		uris = append(uris, uri)
	}
	e.mu.Unlock()

	data, err := json.Marshal(uris)
	if err != nil {
		e.logger.Error("failed to marshal known peers", zap.Error(err))
		return
	}
	if err := writeFileAtomic(e.peersFile, data, 0o600); err != nil {
		e.logger.Error("failed to save peers", zap.Error(err))
	}
}

// loadPeers reads e.peersFile, returning an empty set if it does not
// exist or cannot be parsed.
func (e *Engine) loadPeers() map[string]struct{} {
	out := make(map[string]struct{})
	raw, err := os.ReadFile(e.peersFile)
	if err != nil {
		return out
	}
	var uris []string
	if err := json.Unmarshal(raw, &uris); err != nil {
		e.logger.Error("failed to parse peers file", zap.Error(err))
		return out
	}
	for _, uri := range uris {
		out[uri] = struct{}{}
	}
	return out
}
