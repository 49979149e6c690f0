package hl7

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
	"github.com/inferloop/casesynth/pkg/models"
)

const testHeader = "age,sex,race,ethnicity,case_status,county,pregnant,count,first_elec_submit_dt,diag_dt,died_dt,hosp_admit_dt,illness_onset_dt,invest_start_dt"

var testRows = []string{
	"25,F,W,N,C,001,N,1,2021-01-05,2021-01-03,,,2021-01-01,",
	"40,M,B,N,C,003,N,2,2021-01-04,,,,,",
	",F,W,H,P,001,Y,,2021-01-06,2021-01-06,,,,2021-01-07",
	"33,M,A,U,C,005,N,1,,,,,,",
	"61,F,B,N,C,003,N,3,2021-01-09,2021-01-08,,2021-01-10,,",
}

// memoryCache is an in-memory interfaces.ModelCache.
type memoryCache struct {
	items map[string]*models.ModelData
	gets  int
	puts  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string]*models.ModelData)}
}

func (c *memoryCache) Get(ctx context.Context, key string) (*models.ModelData, error) {
	c.gets++
	return c.items[key], nil
}

func (c *memoryCache) Put(ctx context.Context, key string, data *models.ModelData, ttl time.Duration) error {
	c.puts++
	c.items[key] = data
	return nil
}

func (c *memoryCache) Close() error { return nil }

func writeCaseFile(t *testing.T, dir, jurisdiction string, code int, header string, rows []string) string {
	t.Helper()
	jdir := filepath.Join(dir, jurisdiction)
	require.NoError(t, os.MkdirAll(jdir, 0755))
	path := filepath.Join(jdir, strconv.Itoa(code)+".csv")
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestInputFiles(t *testing.T) {
	dir := t.TempDir()
	writeCaseFile(t, dir, "California", 10311, testHeader, testRows)

	loader := NewLoader(nil, nil, quietLogger())
	files, err := loader.InputFiles(interfaces.LoadRequest{DataDir: dir, Jurisdiction: "California", Codes: []int{10310, 10311, 10312}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "California", "10311.csv"), files[0])

	_, err = loader.InputFiles(interfaces.LoadRequest{DataDir: filepath.Join(dir, "missing")})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestLoadNoFilesIsDataAbsent(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(nil, nil, quietLogger())

	_, err := loader.Load(context.Background(), interfaces.LoadRequest{DataDir: dir, Jurisdiction: "Ohio", Codes: []int{10311}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDataAbsent))
}

func TestLoadBuildsModel(t *testing.T) {
	dir := t.TempDir()
	writeCaseFile(t, dir, "California", 10311, testHeader, testRows)

	loader := NewLoader(nil, nil, quietLogger())
	data, err := loader.Load(context.Background(), interfaces.LoadRequest{DataDir: dir, Jurisdiction: "California", Codes: []int{10311}})
	require.NoError(t, err)

	assert.Equal(t, []int{10311}, data.Codes)
	assert.Equal(t, 1, data.SkippedRecords)
	assert.Len(t, data.Records, 4)
	assert.Equal(t, CategoricalFields, data.VariableNames())

	// anchors: 01-01 (1), 01-04 (2), 01-06 (1), 01-08 (3)
	require.Len(t, data.Days, 8)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), data.Days[0])
	assert.Equal(t, []int{1, 0, 0, 2, 0, 1, 0, 3}, data.Signal)
	assert.Equal(t, 7, data.SignalSum())
	assert.Equal(t, time.Date(2021, 1, 8, 0, 0, 0, 0, time.UTC), data.MaxOriginalDate)

	age := data.Variables[0]
	assert.Equal(t, []string{"999", "25", "40", "61"}, age.Values)
	assert.InDelta(t, 1.0/7, age.CDF[0], 1e-12)
	assert.Equal(t, 1.0, age.CDF[len(age.CDF)-1])

	require.NoError(t, data.Tau.Validate())
	assert.Equal(t, len(CategoricalFields), data.Tau.Dim())

	require.NotNil(t, data.DateModel)
	assert.Equal(t, DateFields, data.DateModel.Fields)
	assert.Len(t, data.DateModel.Offsets, len(DateFields))
	died := data.DateModel.Offsets[2]
	assert.Equal(t, 1.0, died.MissingProbability)
	assert.Nil(t, died.Days)
}

func TestLoadRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	bad := strings.Replace(testHeader, "county", "fips", 1)
	writeCaseFile(t, dir, "Texas", 10311, bad, testRows)

	loader := NewLoader(nil, nil, quietLogger())
	_, err := loader.Load(context.Background(), interfaces.LoadRequest{DataDir: dir, Jurisdiction: "Texas", Codes: []int{10311}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
	assert.Contains(t, err.Error(), "county")
}

func TestLoadOnlyUndatedRows(t *testing.T) {
	dir := t.TempDir()
	writeCaseFile(t, dir, "Utah", 10311, testHeader, []string{"33,M,A,U,C,005,N,1,,,,,,"})

	loader := NewLoader(nil, nil, quietLogger())
	_, err := loader.Load(context.Background(), interfaces.LoadRequest{DataDir: dir, Jurisdiction: "Utah", Codes: []int{10311}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDataAbsent))
}

func TestLoadUsesCache(t *testing.T) {
	dir := t.TempDir()
	writeCaseFile(t, dir, "Iowa", 10311, testHeader, testRows)
	cache := newMemoryCache()
	loader := NewLoader(nil, cache, quietLogger())
	req := interfaces.LoadRequest{DataDir: dir, Jurisdiction: "Iowa", Codes: []int{10311}}

	first, err := loader.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.puts)

	second, err := loader.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, 1, cache.puts)
	assert.Same(t, first, second)
}

func TestCacheKeyChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := writeCaseFile(t, dir, "Iowa", 10311, testHeader, testRows)

	k1, err := CacheKey("casesynth", []string{path})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(k1, "casesynth:model:"))

	require.NoError(t, os.WriteFile(path, []byte(testHeader+"\n"+testRows[0]+"\n"), 0644))
	k2, err := CacheKey("casesynth", []string{path})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}
