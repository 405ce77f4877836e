package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

// DocumentAdapter executes document operations against a Redis-protocol
// store holding JSON documents by key. The operation envelope carries a
// small command language in Query:
//
//	GET <key>          read   fetch one document
//	MGET <k1> <k2>...  read   fetch several documents
//	SCAN <pattern>     read   list keys matching a glob pattern
//	SET <key>          write  store Params[0] (JSON) at key
//	DEL <key>...       write  delete documents
type DocumentAdapter struct {
	limits Limits
}

// NewDocumentAdapter creates a document adapter with the given limits.
func NewDocumentAdapter(limits Limits) *DocumentAdapter {
	return &DocumentAdapter{limits: limits.withDefaults()}
}

var _ Adapter = (*DocumentAdapter)(nil)

func (a *DocumentAdapter) ValidateConfig(config map[string]any) error {
	if _, err := stringField(config, "addr"); err != nil {
		return err
	}
	if db := intField(config, "db", 0); db < 0 || db > 15 {
		return configErr("db must be between 0 and 15")
	}
	return nil
}

func (a *DocumentAdapter) Execute(ctx context.Context, config, credentials map[string]any, op models.Operation) (*Result, error) {
	verb, args, err := parseDocumentCommand(op)
	if err != nil {
		return nil, apperrors.NewBackendError(apperrors.BackendUpstreamRejected, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.limits.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     optStringField(config, "addr"),
		DB:       intField(config, "db", 0),
		Username: optStringField(credentials, "user"),
		Password: optStringField(credentials, "password"),
	})
	defer client.Close()

	switch verb {
	case "GET":
		return a.get(ctx, client, args[:1])
	case "MGET":
		return a.get(ctx, client, args)
	case "SCAN":
		return a.scan(ctx, client, args[0])
	case "SET":
		return a.set(ctx, client, args[0], op.Params)
	case "DEL":
		return a.del(ctx, client, args)
	}
	// Unreachable: parseDocumentCommand rejects unknown verbs.
	return nil, apperrors.NewBackendError(apperrors.BackendUpstreamRejected, fmt.Errorf("unknown verb %q", verb))
}

func (a *DocumentAdapter) get(ctx context.Context, client *redis.Client, keys []string) (*Result, error) {
	if len(keys) > a.limits.MaxRows {
		return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
			fmt.Errorf("request exceeds %d keys", a.limits.MaxRows))
	}

	docs := make(map[string]json.RawMessage, len(keys))
	var total int64
	for _, key := range keys {
		val, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, classifyErr(ctx, err)
		}
		total += int64(len(val))
		if total > a.limits.MaxResponseBytes {
			return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
				fmt.Errorf("result exceeds %d bytes", a.limits.MaxResponseBytes))
		}
		docs[key] = json.RawMessage(val)
	}
	return &Result{Docs: docs}, nil
}

func (a *DocumentAdapter) scan(ctx context.Context, client *redis.Client, pattern string) (*Result, error) {
	var keys []string
	iter := client.Scan(ctx, 0, pattern, int64(a.limits.MaxRows)).Iterator()
	for iter.Next(ctx) {
		if len(keys) >= a.limits.MaxRows {
			return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
				fmt.Errorf("scan exceeds %d keys", a.limits.MaxRows))
		}
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, classifyErr(ctx, err)
	}
	return &Result{Keys: keys}, nil
}

func (a *DocumentAdapter) set(ctx context.Context, client *redis.Client, key string, params []any) (*Result, error) {
	if len(params) != 1 {
		return nil, apperrors.NewBackendError(apperrors.BackendUpstreamRejected,
			fmt.Errorf("SET requires exactly one document parameter"))
	}

	doc, err := json.Marshal(params[0])
	if err != nil {
		return nil, apperrors.NewBackendError(apperrors.BackendUpstreamRejected, err)
	}
	if int64(len(doc)) > a.limits.MaxResponseBytes {
		return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
			fmt.Errorf("document exceeds %d bytes", a.limits.MaxResponseBytes))
	}

	if err := client.Set(ctx, key, doc, 0).Err(); err != nil {
		return nil, classifyErr(ctx, err)
	}
	return &Result{RowsAffected: 1}, nil
}

func (a *DocumentAdapter) del(ctx context.Context, client *redis.Client, keys []string) (*Result, error) {
	deleted, err := client.Del(ctx, keys...).Result()
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	return &Result{RowsAffected: deleted}, nil
}

// parseDocumentCommand splits the Query into verb and arguments and
// checks the verb against the declared operation class.
func parseDocumentCommand(op models.Operation) (string, []string, error) {
	fields := strings.Fields(op.Query)
	if len(fields) < 2 {
		return "", nil, fmt.Errorf("document command requires a verb and at least one key")
	}
	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	var class models.OpClass
	switch verb {
	case "GET", "MGET", "SCAN":
		class = models.OpRead
	case "SET", "DEL":
		class = models.OpWrite
	default:
		return "", nil, fmt.Errorf("unsupported document verb %q", verb)
	}
	if class != op.Class {
		return "", nil, fmt.Errorf("verb %s does not match declared class %s", verb, op.Class)
	}
	return verb, args, nil
}
