package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xivvy/internal/models"
	"xivvy/internal/taxonomy"
)

func writeCorpus(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func collect(t *testing.T, r *Reader) ([]Batch, error) {
	t.Helper()
	batches, errc := r.Batches(context.Background())
	var out []Batch
	for b := range batches {
		out = append(out, b)
	}
	return out, <-errc
}

const (
	recA = `{"id":"0704.0001","title":"Calculation of prompt diphoton production","abstract":"A QCD calculation.","authors_parsed":[["Aurenche","P.",""],["Fontannaz","M.",""]],"categories":"hep-ph","update_date":"2008-11-26"}`
	recB = `{"id":"0704.0002","title":"Sparse graph limits","abstract":"We study limits of sparse graphs.","authors":"J. Smith, K. Jones","categories":"math.CO cs.DM","update_date":"2009-01-03"}`
	recC = `{"id":"0704.0003","title":"Legacy category record","abstract":"Old-form identifiers.","categories":"alg-geom q-alg","update_date":"2007-05-23"}`
)

func TestReaderExtractsAndNormalizes(t *testing.T) {
	path := writeCorpus(t, recA, recB, recC)
	r := NewReader(path, 10, taxonomy.NewNormalizer(true), nil, nil)
	batches, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	papers := batches[0].Papers
	require.Len(t, papers, 3)
	require.Equal(t, "0704.0003", batches[0].LastID)

	require.Equal(t, []string{"P. Aurenche", "M. Fontannaz"}, papers[0].Authors)
	require.Equal(t, []string{"hep"}, papers[0].Categories)

	require.Equal(t, []string{"J. Smith", "K. Jones"}, papers[1].Authors)
	require.Equal(t, []string{"cs", "math"}, papers[1].Categories)

	require.Equal(t, []string{"Unknown"}, papers[2].Authors)
	require.Equal(t, []string{"math", "quant-ph"}, papers[2].Categories)
}

func TestReaderDropsMalformed(t *testing.T) {
	path := writeCorpus(t,
		"not json at all",
		`{"title":"no id","abstract":"x"}`,
		`{"id":"0704.0009"}`,
		recA,
	)
	r := NewReader(path, 10, taxonomy.NewNormalizer(true), nil, nil)
	batches, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Papers, 1)
	require.Equal(t, "0704.0001", batches[0].Papers[0].ID)
}

func TestReaderLastIDIncludesDroppedLines(t *testing.T) {
	// The trailing record has an id but no text, so it is dropped. The
	// checkpoint id still advances past it.
	path := writeCorpus(t, recA, `{"id":"0704.0099"}`)
	r := NewReader(path, 10, taxonomy.NewNormalizer(true), nil, nil)
	batches, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Papers, 1)
	require.Equal(t, "0704.0099", batches[0].LastID)
}

func TestReaderBatchSize(t *testing.T) {
	path := writeCorpus(t, recA, recB, recC)
	r := NewReader(path, 2, taxonomy.NewNormalizer(true), nil, nil)
	batches, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Len(t, batches[0].Papers, 2)
	require.Len(t, batches[1].Papers, 1)
	require.Equal(t, "0704.0002", batches[0].LastID)
	require.Equal(t, "0704.0003", batches[1].LastID)
}

func TestReaderResume(t *testing.T) {
	path := writeCorpus(t, recA, recB, recC)
	r := NewReader(path, 10, taxonomy.NewNormalizer(true), nil, nil)
	r.Resume(&models.Checkpoint{LastProcessedID: "0704.0002"})
	batches, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Papers, 1)
	require.Equal(t, "0704.0003", batches[0].Papers[0].ID)
}

func TestReaderResumeIDNotFound(t *testing.T) {
	path := writeCorpus(t, recA, recB)
	r := NewReader(path, 10, taxonomy.NewNormalizer(true), nil, nil)
	r.Resume(&models.Checkpoint{LastProcessedID: "9999.99999"})
	batches, err := collect(t, r)
	require.NoError(t, err)
	require.Empty(t, batches, "unmatched checkpoint must not replay the corpus")
}

func TestReaderMissingFile(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "absent.json"), 10, nil, nil, nil)
	batches, err := collect(t, r)
	require.Error(t, err)
	require.Empty(t, batches)
}

func TestReaderSanitizesAndValidatesDates(t *testing.T) {
	line := `{"id":"0704.0001","title":"A Study","abstract":"On $x^2$ topic","categories":"cs.AI math","update_date":"2007-04-02"}`
	bad := `{"id":"0704.0002","title":"No Date","abstract":"text","categories":"cs","update_date":"April 2007"}`
	path := writeCorpus(t, line, bad)
	r := NewReader(path, 10, taxonomy.NewNormalizer(true), nil, nil)
	batches, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	p := batches[0].Papers[0]
	require.Equal(t, "0704.0001", p.ID)
	require.Equal(t, "A Study", p.Title)
	require.Equal(t, "On topic", p.Abstract)
	require.Equal(t, []string{"cs", "math"}, p.Categories)
	require.Equal(t, "2007-04-02", p.DateUpdated)

	require.Equal(t, "", batches[0].Papers[1].DateUpdated, "malformed dates clear to empty")
}
