// Package artifact loads compiled contract artifacts (Hardhat or Foundry layout) and turns them into
// deployable initcode.
package artifact

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrAmbiguousArtifact = errors.New("artifact name is ambiguous")
	ErrNoBytecode        = errors.New("artifact has no bytecode")
	ErrUnlinked          = errors.New("bytecode has unlinked libraries")
)

type (
	// Offset is a byte range of a library placeholder inside the bytecode.
	Offset struct {
		Start  int `json:"start"`
		Length int `json:"length"`
	}

	// LinkReferences maps source name -> library name -> placeholder offsets.
	LinkReferences map[string]map[string][]Offset

	Artifact struct {
		ContractName   string
		SourceName     string
		Path           string
		ABI            abi.ABI
		LinkReferences LinkReferences

		bytecodeHex string
	}

	rawArtifact struct {
		ContractName   string          `json:"contractName"`
		SourceName     string          `json:"sourceName"`
		ABI            json.RawMessage `json:"abi"`
		Bytecode       json.RawMessage `json:"bytecode"`
		LinkReferences LinkReferences  `json:"linkReferences"`
	}

	foundryBytecode struct {
		Object         string         `json:"object"`
		LinkReferences LinkReferences `json:"linkReferences"`
	}
)

func Load(path string) (*Artifact, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	a, err := Parse(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.Path = path
	if a.ContractName == "" {
		a.ContractName = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if a.SourceName == "" {
		a.SourceName = filepath.Base(filepath.Dir(path))
	}
	return a, nil
}

func Parse(blob []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, errors.New("artifact has no abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	a := &Artifact{
		ContractName:   raw.ContractName,
		SourceName:     raw.SourceName,
		ABI:            parsed,
		LinkReferences: raw.LinkReferences,
	}

	// Hardhat stores a hex string, Foundry an object.
	switch {
	case len(raw.Bytecode) == 0:
	case raw.Bytecode[0] == '"':
		if err := json.Unmarshal(raw.Bytecode, &a.bytecodeHex); err != nil {
			return nil, fmt.Errorf("decode bytecode: %w", err)
		}
	default:
		var fb foundryBytecode
		if err := json.Unmarshal(raw.Bytecode, &fb); err != nil {
			return nil, fmt.Errorf("decode bytecode: %w", err)
		}
		a.bytecodeHex = fb.Object
		if len(a.LinkReferences) == 0 {
			a.LinkReferences = fb.LinkReferences
		}
	}
	a.bytecodeHex = strings.TrimPrefix(a.bytecodeHex, "0x")
	return a, nil
}

// Find walks root for <name>.json. Debug files and build-info are skipped.
func Find(root, name string) (*Artifact, error) {
	var matches []string
	err := filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			if e.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if e.Name() == name+".json" {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s under %s", ErrArtifactNotFound, name, root)
	case 1:
		return Load(matches[0])
	default:
		sort.Strings(matches)
		return nil, fmt.Errorf("%w: %s (%s)", ErrAmbiguousArtifact, name, strings.Join(matches, ", "))
	}
}

// Unlinked lists "source:Library" for every library still waiting for an address.
func (a *Artifact) Unlinked() []string {
	var out []string
	for source, libs := range a.LinkReferences {
		for lib := range libs {
			out = append(out, source+":"+lib)
		}
	}
	sort.Strings(out)
	return out
}

// Link patches library addresses into the bytecode. Keys are "source:Library" or "Library".
func (a *Artifact) Link(libs map[string]common.Address) error {
	code := []byte(a.bytecodeHex)
	for source, refs := range a.LinkReferences {
		for lib, offsets := range refs {
			addr, ok := libs[source+":"+lib]
			if !ok {
				addr, ok = libs[lib]
			}
			if !ok {
				continue
			}
			hexAddr := hex.EncodeToString(addr.Bytes())
			for _, off := range offsets {
				start, end := off.Start*2, (off.Start+off.Length)*2
				if off.Length != common.AddressLength || end > len(code) {
					return fmt.Errorf("link %s:%s: bad offset %d+%d", source, lib, off.Start, off.Length)
				}
				copy(code[start:end], hexAddr)
			}
			delete(refs, lib)
		}
		if len(refs) == 0 {
			delete(a.LinkReferences, source)
		}
	}
	a.bytecodeHex = string(code)
	return nil
}

func (a *Artifact) Bytecode() ([]byte, error) {
	if a.bytecodeHex == "" {
		return nil, fmt.Errorf("%s: %w", a.ContractName, ErrNoBytecode)
	}
	if unlinked := a.Unlinked(); len(unlinked) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", a.ContractName, ErrUnlinked, strings.Join(unlinked, ", "))
	}
	code, err := hex.DecodeString(a.bytecodeHex)
	if err != nil {
		return nil, fmt.Errorf("%s: decode bytecode: %w", a.ContractName, err)
	}
	return code, nil
}

// DeployData returns initcode followed by the ABI-encoded constructor arguments.
func (a *Artifact) DeployData(args ...any) ([]byte, error) {
	code, err := a.Bytecode()
	if err != nil {
		return nil, err
	}
	if want := len(a.ABI.Constructor.Inputs); want != len(args) {
		return nil, fmt.Errorf("%s: constructor takes %d arguments, got %d", a.ContractName, want, len(args))
	}
	if len(args) == 0 {
		return code, nil
	}
	packed, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack constructor: %w", a.ContractName, err)
	}
	return append(code, packed...), nil
}
