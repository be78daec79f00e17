package inference

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/triage.report/internal/features"
)

// sumModel predicts the weighted sum of the features, which makes any
// reordering of fields visible.
type sumModel struct{}

func (sumModel) Predict(v features.Vector) float64 {
	var s float64
	for i, x := range v {
		s += float64(i+1) * x
	}
	return s
}

type nanModel struct{}

func (nanModel) Predict(features.Vector) float64 { return math.NaN() }

func vec() features.Vector {
	return features.Vector{0.038, 0.05, 0.061, 0.021, -0.044, -0.034, -0.043, -0.002, 0.019, -0.017}
}

func TestPredict(t *testing.T) {
	got, err := Predict(sumModel{}, vec())
	require.NoError(t, err)
	assert.InDelta(t, sumModel{}.Predict(vec()), got, 0)

	bad := vec()
	bad[3] = math.Inf(1)
	_, err = Predict(sumModel{}, bad)
	assert.ErrorIs(t, err, features.ErrInvalidInput)

	_, err = Predict(nanModel{}, vec())
	assert.ErrorIs(t, err, ErrNonFinitePrediction)
	assert.False(t, errors.Is(err, features.ErrInvalidInput))
}

func TestPredictRequest(t *testing.T) {
	req := features.NewRequest(vec())
	got, err := PredictRequest(sumModel{}, &req)
	require.NoError(t, err)
	assert.Equal(t, sumModel{}.Predict(vec()), got)

	req.Sex = nil
	_, err = PredictRequest(sumModel{}, &req)
	assert.ErrorIs(t, err, features.ErrInvalidInput)
	var fe *features.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "sex", fe.Field)
}

func TestPredictJSON_FieldOrderDoesNotMatter(t *testing.T) {
	ordered := `{"age":0.038,"sex":0.05,"bmi":0.061,"bp":0.021,"s1":-0.044,"s2":-0.034,"s3":-0.043,"s4":-0.002,"s5":0.019,"s6":-0.017}`
	shuffled := `{"s6":-0.017,"bp":0.021,"s1":-0.044,"age":0.038,"s5":0.019,"bmi":0.061,"s2":-0.034,"sex":0.05,"s4":-0.002,"s3":-0.043}`

	a, err := PredictJSON(sumModel{}, strings.NewReader(ordered))
	require.NoError(t, err)
	b, err := PredictJSON(sumModel{}, strings.NewReader(shuffled))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, sumModel{}.Predict(vec()), a)
}

func TestPredictJSON_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing sex":  `{"age":0.038,"bmi":0.061,"bp":0.021,"s1":-0.044,"s2":-0.034,"s3":-0.043,"s4":-0.002,"s5":0.019,"s6":-0.017}`,
		"string value": `{"age":"old","sex":0.05,"bmi":0.061,"bp":0.021,"s1":-0.044,"s2":-0.034,"s3":-0.043,"s4":-0.002,"s5":0.019,"s6":-0.017}`,
		"null value":   `{"age":null,"sex":0.05,"bmi":0.061,"bp":0.021,"s1":-0.044,"s2":-0.034,"s3":-0.043,"s4":-0.002,"s5":0.019,"s6":-0.017}`,
		"extra field":  `{"age":0.038,"sex":0.05,"bmi":0.061,"bp":0.021,"s1":-0.044,"s2":-0.034,"s3":-0.043,"s4":-0.002,"s5":0.019,"s6":-0.017,"s7":1}`,
		"not json":     `age=1`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := PredictJSON(sumModel{}, strings.NewReader(body))
			assert.ErrorIs(t, err, features.ErrInvalidInput)
		})
	}
}

func TestPredictMap(t *testing.T) {
	obj := map[string]interface{}{}
	for i, n := range features.Names {
		obj[n] = vec()[i]
	}
	got, err := PredictMap(sumModel{}, obj)
	require.NoError(t, err)
	assert.Equal(t, sumModel{}.Predict(vec()), got)

	obj["bmi"] = math.NaN()
	_, err = PredictMap(sumModel{}, obj)
	assert.ErrorIs(t, err, features.ErrInvalidInput)
}

func TestPredict_ConcurrentCallsAgree(t *testing.T) {
	want := sumModel{}.Predict(vec())
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := vec()
			if i%4 == 0 {
				v[0] = math.NaN()
				if _, err := Predict(sumModel{}, v); !errors.Is(err, features.ErrInvalidInput) {
					errs <- err
				}
				return
			}
			got, err := Predict(sumModel{}, v)
			if err != nil || got != want {
				errs <- errors.New("unexpected prediction")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
