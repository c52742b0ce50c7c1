// Package record keeps a deployments.json file of published contracts.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

type Record struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	ChainID     uint64 `json:"chain_id"`
	Deployer    string `json:"deployer,omitempty"`
	Artifact    string `json:"artifact,omitempty"`
}

// Load returns the records in path; a missing file is an empty list.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

// Save merges records into path keyed by (chain_id, name); the new entry wins.
func Save(path string, records ...Record) error {
	existing, err := Load(path)
	if err != nil {
		return err
	}

	merged := Merge(existing, records...)
	blob, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(blob, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Merge(existing []Record, records ...Record) []Record {
	type key struct {
		chainID uint64
		name    string
	}
	idx := make(map[key]int, len(existing))
	out := append([]Record(nil), existing...)
	for i, r := range out {
		idx[key{r.ChainID, r.Name}] = i
	}
	for _, r := range records {
		k := key{r.ChainID, r.Name}
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func Find(records []Record, chainID uint64, name string) (Record, bool) {
	for _, r := range records {
		if r.ChainID == chainID && r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}
