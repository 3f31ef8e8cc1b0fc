package optimization

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
)

func storedTrial(number int) FrozenTrial {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return FrozenTrial{
		Number:       number,
		State:        TrialComplete,
		Value:        42.5,
		Params:       map[string]float64{"adx1.period": 14},
		Intermediate: map[int]float64{10: 12, 100: 42.5},
		Rungs:        map[int]float64{0: 12},
		Started:      start,
		Finished:     start.Add(time.Second),
	}
}

func TestRedisStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	storage := NewRedisStorage(db, "test:", time.Hour)
	key := "test:study:regimes:trials"

	trial := storedTrial(3)
	data, err := json.Marshal(trial)
	require.NoError(t, err)

	mock.ExpectRPush(key, string(data)).SetVal(1)
	mock.ExpectExpire(key, time.Hour).SetVal(true)
	require.NoError(t, storage.SaveTrial(ctx, "regimes", trial))

	mock.ExpectLRange(key, 0, -1).SetVal([]string{string(data)})
	loaded, err := storage.LoadTrials(ctx, "regimes")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, trial, loaded[0])

	mock.ExpectDel(key).SetVal(1)
	require.NoError(t, storage.DeleteStudy(ctx, "regimes"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStorageErrors(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	storage := NewRedisStorage(db, "", 0)
	key := "study:regimes:trials"

	mock.ExpectLRange(key, 0, -1).RedisNil()
	loaded, err := storage.LoadTrials(ctx, "regimes")
	require.NoError(t, err)
	assert.Empty(t, loaded)

	mock.ExpectLRange(key, 0, -1).SetVal([]string{"{not json"})
	_, err = storage.LoadTrials(ctx, "regimes")
	assert.Error(t, err)

	mock.ExpectLRange(key, 0, -1).SetErr(stderrors.New("connection refused"))
	_, err = storage.LoadTrials(ctx, "regimes")
	require.Error(t, err)
	var dataErr *errors.DataError
	require.True(t, stderrors.As(err, &dataErr))
	assert.Equal(t, errors.ErrorCategoryNetwork, dataErr.Kind)

	data, err := json.Marshal(storedTrial(0))
	require.NoError(t, err)
	mock.ExpectRPush(key, string(data)).SetErr(redis.TxFailedErr)
	assert.Error(t, storage.SaveTrial(ctx, "regimes", storedTrial(0)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudyResumesFromRedis(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	storage := NewRedisStorage(db, "", 0)
	key := "study:signals:trials"

	var entries []string
	for _, n := range []int{1, 0} {
		tr := storedTrial(n)
		tr.Params = map[string]float64{"a.threshold": 1, "b.period": 10}
		data, err := json.Marshal(tr)
		require.NoError(t, err)
		entries = append(entries, string(data))
	}
	mock.ExpectLRange(key, 0, -1).SetVal(entries)

	study, err := NewStudy(ctx, "signals", testSpace(t), StudyOptions{Storage: storage})
	require.NoError(t, err)
	trials := study.Trials()
	require.Len(t, trials, 2)
	assert.Equal(t, 0, trials[0].Number)

	next, err := study.SuggestParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	require.NoError(t, s.SaveTrial(ctx, "a", storedTrial(0)))
	require.NoError(t, s.SaveTrial(ctx, "b", storedTrial(0)))

	loaded, err := s.LoadTrials(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	require.NoError(t, s.DeleteStudy(ctx, "a"))
	loaded, err = s.LoadTrials(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
