package matching

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"parallax/internal/feature"
	"parallax/internal/logging"
)

// featurePairsCacheSize is the descriptor LRU capacity of the import cache;
// imports read no descriptors, so the LRU stays empty.
const featurePairsCacheSize = 100

// FeaturePairsImporter writes externally computed matches straight into the
// database. Records are an image-name pair line followed by feature-index
// pair lines, terminated by a blank line. No matcher workers are involved.
type FeaturePairsImporter struct {
	opts   FeaturePairsOptions
	store  Store
	logger *slog.Logger
	cache  *Cache
}

// NewFeaturePairsImporter assembles the importer.
func NewFeaturePairsImporter(opts FeaturePairsOptions, store Store, logger *slog.Logger) (*FeaturePairsImporter, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	return &FeaturePairsImporter{
		opts:   opts,
		store:  store,
		logger: logging.NewComponentLogger(logger, "feature_pairs"),
		cache:  NewCache(featurePairsCacheSize, store),
	}, nil
}

// Run imports every record in the file. A record whose images are unknown or
// whose matches already exist is skipped; a malformed feature line aborts
// only that record.
func (m *FeaturePairsImporter) Run(ctx context.Context) error {
	m.logger.Info("importing matches",
		logging.String(logging.FieldRunID, uuid.NewString()),
		logging.String("match_list", m.opts.MatchListPath))

	if ctx.Err() != nil {
		return nil
	}

	if err := m.cache.Setup(ctx); err != nil {
		return err
	}

	nameToID := make(map[string]uint32, len(m.cache.ImageIDs()))
	for _, imageID := range m.cache.ImageIDs() {
		if image, ok := m.cache.Image(imageID); ok {
			nameToID[image.Name] = imageID
		}
	}

	file, err := os.Open(m.opts.MatchListPath)
	if err != nil {
		return fmt.Errorf("open match list: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if ctx.Err() != nil {
			m.logger.Info("import stopped")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			m.logger.Warn("malformed image pair record", logging.String("line", line))
			skipRecord(scanner)
			continue
		}
		name1, name2 := fields[0], fields[1]
		m.logger.Debug("record", logging.String("image1", name1), logging.String("image2", name2))

		imageID1, ok1 := nameToID[name1]
		imageID2, ok2 := nameToID[name2]
		if !ok1 || !ok2 {
			missing := name1
			if ok1 {
				missing = name2
			}
			m.logger.Warn("image not found in database", logging.String("name", missing))
			skipRecord(scanner)
			continue
		}

		skipPair := false
		exists, err := m.cache.ExistsMatches(ctx, imageID1, imageID2)
		if err != nil {
			return err
		}
		if exists {
			m.logger.Info("matches for image pair already exist",
				logging.String("image1", name1), logging.String("image2", name2))
			skipPair = true
		}

		matches, parseErr := readRecordMatches(scanner)
		if parseErr != nil {
			m.logger.Warn("cannot read feature matches",
				logging.String("image1", name1),
				logging.String("image2", name2),
				logging.Error(parseErr))
			skipRecord(scanner)
			continue
		}

		if skipPair {
			continue
		}

		if err := m.store.WriteMatches(ctx, imageID1, imageID2, matches); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read match list: %w", err)
	}
	return nil
}

// readRecordMatches consumes feature-index lines until the blank line that
// ends the record.
func readRecordMatches(scanner *bufio.Scanner) (feature.Matches, error) {
	var matches feature.Matches
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("expected two feature indices, got %q", line)
		}
		idx1, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("feature index %q: %w", fields[0], err)
		}
		idx2, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("feature index %q: %w", fields[1], err)
		}
		matches = append(matches, feature.Match{Idx1: uint32(idx1), Idx2: uint32(idx2)})
	}
	return matches, nil
}

// skipRecord consumes the remainder of the current record.
func skipRecord(scanner *bufio.Scanner) {
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			return
		}
	}
}
