package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go-softedge/pkg/common"
)

const (
	workersGroup    = "workers"
	collectorsGroup = "collectors"
)

var ErrNotFound = errors.New("not found")

type RedisClient struct {
	client *redis.Client
	prefix string
}

// Delivery is a job read from the stream together with its stream id, which
// must be passed to AckJob once handled.
type Delivery struct {
	ID  string
	Job *common.JobMessage
}

func NewRedisClient(ctx context.Context, addr string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisClientFrom(client), nil
}

// NewRedisClientFrom wraps an existing client.
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client, prefix: "softedge"}
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) jobsStream() string {
	return r.prefix + ":jobs"
}

func (r *RedisClient) resultsStream() string {
	return r.prefix + ":results"
}

func (r *RedisClient) runInfoKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:info", r.prefix, runID)
}

func (r *RedisClient) receivedSetKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:received", r.prefix, runID)
}

func (r *RedisClient) jobInfoKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", r.prefix, jobID)
}

// EnsureGroups creates both consumer groups. Existing groups are left alone.
func (r *RedisClient) EnsureGroups(ctx context.Context) error {
	for stream, group := range map[string]string{
		r.jobsStream():    workersGroup,
		r.resultsStream(): collectorsGroup,
	} {
		err := r.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

func (r *RedisClient) AddJob(ctx context.Context, job *common.JobMessage) (string, error) {
	return r.add(ctx, r.jobsStream(), job)
}

func (r *RedisClient) AddResult(ctx context.Context, res *common.ResultMessage) (string, error) {
	return r.add(ctx, r.resultsStream(), res)
}

func (r *RedisClient) add(ctx context.Context, stream string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": b},
	}).Result()
}

// ReadJob blocks up to block for the next job. It returns a nil job when
// nothing arrived in time.
func (r *RedisClient) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	msg, err := r.readOne(ctx, r.jobsStream(), workersGroup, consumer, block)
	if err != nil || msg == nil {
		return "", nil, err
	}

	job, err := decodeJob(msg.Values)
	if err != nil {
		return msg.ID, nil, err
	}
	return msg.ID, job, nil
}

func (r *RedisClient) AckJob(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.jobsStream(), workersGroup, id).Err()
}

func (r *RedisClient) ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error) {
	msg, err := r.readOne(ctx, r.resultsStream(), collectorsGroup, consumer, block)
	if err != nil || msg == nil {
		return "", nil, err
	}

	var res common.ResultMessage
	if err := json.Unmarshal(bytesFromInterface(msg.Values["data"]), &res); err != nil {
		return msg.ID, nil, err
	}
	return msg.ID, &res, nil
}

func (r *RedisClient) AckResult(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.resultsStream(), collectorsGroup, id).Err()
}

func (r *RedisClient) readOne(ctx context.Context, stream, group, consumer string, block time.Duration) (*redis.XMessage, error) {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}
	return &result[0].Messages[0], nil
}

// ClaimStaleJobs takes over jobs that another consumer read but did not
// acknowledge within minIdle, and returns them for processing.
func (r *RedisClient) ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]Delivery, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.jobsStream(),
		Group:  workersGroup,
		Idle:   minIdle,
		Count:  int64(count),
		Start:  "-",
		End:    "+",
	}).Result()

	if err != nil || len(pending) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.jobsStream(),
		Group:    workersGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(claimed))
	for _, msg := range claimed {
		// Undecodable jobs are still returned so the caller can ack them.
		job, _ := decodeJob(msg.Values)
		deliveries = append(deliveries, Delivery{ID: msg.ID, Job: job})
	}
	return deliveries, nil
}

func (r *RedisClient) StoreRunInfo(ctx context.Context, info *common.RunInfo) error {
	return r.setJSON(ctx, r.runInfoKey(info.ID), info, common.INFO_TTL)
}

func (r *RedisClient) GetRunInfo(ctx context.Context, runID string) (*common.RunInfo, error) {
	var info common.RunInfo
	if err := r.getJSON(ctx, r.runInfoKey(runID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *RedisClient) StoreJobInfo(ctx context.Context, info *common.JobInfo) error {
	return r.setJSON(ctx, r.jobInfoKey(info.Job.ID), info, common.INFO_TTL)
}

// GetJobInfo returns ErrNotFound for unknown or expired jobs.
func (r *RedisClient) GetJobInfo(ctx context.Context, jobID string) (*common.JobInfo, error) {
	var info common.JobInfo
	if err := r.getJSON(ctx, r.jobInfoKey(jobID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MarkResultReceived records jobID as collected for runID. It reports false
// if the job had already been recorded.
func (r *RedisClient) MarkResultReceived(ctx context.Context, runID, jobID string) (bool, error) {
	key := r.receivedSetKey(runID)
	added, err := r.client.SAdd(ctx, key, jobID).Result()
	if err != nil {
		return false, err
	}
	r.client.Expire(ctx, key, common.INFO_TTL)
	return added == 1, nil
}

func (r *RedisClient) ReceivedCount(ctx context.Context, runID string) (int64, error) {
	return r.client.SCard(ctx, r.receivedSetKey(runID)).Result()
}

func (r *RedisClient) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, b, ttl).Err()
}

func (r *RedisClient) getJSON(ctx context.Context, key string, v any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func decodeJob(values map[string]interface{}) (*common.JobMessage, error) {
	var job common.JobMessage
	if err := json.Unmarshal(bytesFromInterface(values["data"]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// bytesFromInterface handles Redis returning either string or []byte.
func bytesFromInterface(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
