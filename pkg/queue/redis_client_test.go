package queue

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"go-softedge/pkg/common"
)

func newTestClient() *RedisClient {
	// The client connects lazily, so no server is needed for key helpers.
	return NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
}

func TestKeys(t *testing.T) {
	r := newTestClient()
	defer r.Close()

	tests := []struct {
		got, want string
	}{
		{r.jobsStream(), "softedge:jobs"},
		{r.resultsStream(), "softedge:results"},
		{r.runInfoKey("run-1"), "softedge:run:run-1:info"},
		{r.receivedSetKey("run-1"), "softedge:run:run-1:received"},
		{r.jobInfoKey("abc"), "softedge:job:abc"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestDecodeJob(t *testing.T) {
	msg := &common.JobMessage{
		Type: common.JOB_TYPE_PROCESS,
		Job:  &common.Job{ID: "abc", InputPath: "in.png", OutputPath: "out.png", Radius: 2},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	for name, raw := range map[string]interface{}{"string": string(b), "bytes": b} {
		t.Run(name, func(t *testing.T) {
			got, err := decodeJob(map[string]interface{}{"data": raw})
			if err != nil {
				t.Fatalf("decodeJob: %v", err)
			}
			if got.Type != common.JOB_TYPE_PROCESS || got.Job == nil || got.Job.ID != "abc" || got.Job.Radius != 2 {
				t.Errorf("decodeJob = %+v", got)
			}
		})
	}

	if _, err := decodeJob(map[string]interface{}{"data": "{broken"}); err == nil {
		t.Error("decodeJob accepted malformed payload")
	}
}

func TestIsBusyGroup(t *testing.T) {
	if !isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("BUSYGROUP not recognised")
	}
	if isBusyGroup(errors.New("ERR something else")) || isBusyGroup(nil) {
		t.Error("unexpected BUSYGROUP match")
	}
}
