package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/custodia/ledgerwatch/internal/ledger"
)

// IngestBaseline records the content hash of an exhibit at ingestion time
// and appends the matching custody event. Baselines are written once; a
// repeated ingest for the same exhibit id overwrites, which is itself
// recorded in the ledger.
func (s *Store) IngestBaseline(exhibitID, filename string, content []byte) (ledger.BaselineEntry, error) {
	entry := ledger.BaselineEntry{
		ExhibitID:     exhibitID,
		Filename:      filename,
		IntegrityHash: ledger.HashBytes(content),
	}
	if err := s.index.upsertBaseline(entry); err != nil {
		return ledger.BaselineEntry{}, err
	}

	if _, err := s.Append("EXHIBIT_INGESTED", "", exhibitID, ledger.Payload{
		ExhibitID: exhibitID,
		Detail:    filename,
	}); err != nil {
		return ledger.BaselineEntry{}, err
	}
	return entry, nil
}

// Baselines returns the baseline hash registry.
func (s *Store) Baselines() ([]ledger.BaselineEntry, error) {
	return s.index.baselines()
}

// baselineSeed is the YAML shape of a registry seed file: a list of entries
// exported from a prior ingestion run.
type baselineSeed struct {
	Baselines []struct {
		ExhibitID     string `yaml:"exhibitId"`
		Filename      string `yaml:"filename"`
		IntegrityHash string `yaml:"integrityHash"`
	} `yaml:"baselines"`
}

// LoadBaselineSeed merges a YAML seed file into the registry. A missing
// file is not an error — the seed is optional. Used at startup and by the
// config watcher for hot reload.
func (s *Store) LoadBaselineSeed(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading baseline seed %s: %w", path, err)
	}

	var seed baselineSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parsing baseline seed %s: %w", path, err)
	}

	loaded := 0
	for _, b := range seed.Baselines {
		if b.ExhibitID == "" || b.Filename == "" {
			continue
		}
		entry := ledger.BaselineEntry{
			ExhibitID:     b.ExhibitID,
			Filename:      b.Filename,
			IntegrityHash: b.IntegrityHash,
		}
		if err := s.index.upsertBaseline(entry); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}
