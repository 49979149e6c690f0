package hl7

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

func readerVariables(t *testing.T) []*models.Variable {
	t.Helper()
	age, err := models.NewVariable(FieldAge, []string{"999", "25", "40"}, []float64{1, 1, 1})
	require.NoError(t, err)
	sex, err := models.NewVariable(FieldSex, []string{"F", "M"}, []float64{1, 1})
	require.NoError(t, err)
	return []*models.Variable{age, sex}
}

func TestReadTuples(t *testing.T) {
	content := testHeader + "\n" +
		"40,M,W,N,C,001,N,1,2021-01-05,,,,,\n" +
		",F,W,N,C,001,N,1,2021-01-06,,,,,\n"

	tuples, err := ReadTuples(strings.NewReader(content), readerVariables(t))
	require.NoError(t, err)
	assert.Equal(t, []models.Tuple{{2, 1}, {0, 0}}, tuples)
}

func TestReadTuplesErrors(t *testing.T) {
	vars := readerVariables(t)

	_, err := ReadTuples(strings.NewReader("age,sex\n1,F\n"), vars)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	_, err = ReadTuples(strings.NewReader(testHeader+"\n77,F,W,N,C,001,N,1,,,,,,\n"), vars)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	bad, err := models.NewVariable("weight", []string{"1"}, []float64{1})
	require.NoError(t, err)
	_, err = ReadTuples(strings.NewReader(testHeader+"\n"), []*models.Variable{bad})
	require.Error(t, err)
}
