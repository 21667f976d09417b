package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/hitoshi/cabinet/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig はS3互換オブジェクトストレージの接続設定。
type MinioConfig struct {
	Endpoint  string // "minio:9000" または "https://s3.example.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // オブジェクトキーのプレフィックス（例: "cabinet/"）
}

// MinioSlotRepo はS3互換オブジェクトストレージ上の単一ファイルスロット。
//
// オブジェクトレイアウト:
//
//	<prefix>uploads/cfip.csv|cfip.txt  ファイル本体
//	<prefix>slot.json                  メタデータ
type MinioSlotRepo struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioClient は設定からminioクライアントを生成する。
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid minio endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// NewMinioSlotRepo はMinioSlotRepoを生成する。
func NewMinioSlotRepo(client *minio.Client, bucket, prefix string) *MinioSlotRepo {
	return &MinioSlotRepo{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Replace は旧ファイルを削除してから新しいファイルとメタデータを書き込む。
// メタデータの書き込みに失敗した場合は本体も削除し、スロットを空に戻す。
func (r *MinioSlotRepo) Replace(ctx context.Context, meta SlotMeta, content []byte) (*SlotMeta, error) {
	if !model.IsCanonicalName(meta.CanonicalName) {
		return nil, fmt.Errorf("invalid canonical name: %q", meta.CanonicalName)
	}

	for _, name := range []string{model.CanonicalCSV, model.CanonicalTXT} {
		if name == meta.CanonicalName {
			continue
		}
		if err := r.removeObject(ctx, r.blobKey(name)); err != nil {
			return nil, err
		}
	}

	info, err := r.client.PutObject(ctx, r.bucket, r.blobKey(meta.CanonicalName),
		bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentTypeFor(meta.CanonicalName)},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	committed := meta
	committed.SizeBytes = int64(len(content))
	committed.ModifiedAt = info.LastModified
	if committed.ModifiedAt.IsZero() {
		stat, err := r.client.StatObject(ctx, r.bucket, r.blobKey(meta.CanonicalName), minio.StatObjectOptions{})
		if err != nil {
			r.discard(ctx, meta.CanonicalName)
			return nil, fmt.Errorf("failed to stat object: %w", err)
		}
		committed.ModifiedAt = stat.LastModified
	}

	data, err := json.Marshal(committed)
	if err != nil {
		r.discard(ctx, meta.CanonicalName)
		return nil, fmt.Errorf("failed to encode slot metadata: %w", err)
	}
	if _, err := r.client.PutObject(ctx, r.bucket, r.metaKey(),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	); err != nil {
		r.discard(ctx, meta.CanonicalName)
		return nil, fmt.Errorf("failed to put slot metadata: %w", err)
	}

	return &committed, nil
}

// Stat は現在のメタデータを返す。空の場合はnilを返す。
func (r *MinioSlotRepo) Stat(ctx context.Context) (*SlotMeta, error) {
	meta, err := r.readMeta(ctx)
	if err != nil || meta == nil {
		return nil, err
	}

	if _, err := r.client.StatObject(ctx, r.bucket, r.blobKey(meta.CanonicalName), minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return meta, nil
}

// Open は現在のファイル内容とメタデータを返す。空の場合はnilを返す。
func (r *MinioSlotRepo) Open(ctx context.Context) (*SlotMeta, []byte, error) {
	meta, err := r.readMeta(ctx)
	if err != nil || meta == nil {
		return nil, nil, err
	}

	content, found, err := r.getObject(ctx, r.blobKey(meta.CanonicalName))
	if err != nil || !found {
		return nil, nil, err
	}
	return meta, content, nil
}

// Remove はメタデータと両方の正規名のオブジェクトを削除する。
func (r *MinioSlotRepo) Remove(ctx context.Context) error {
	if err := r.removeObject(ctx, r.metaKey()); err != nil {
		return err
	}
	for _, name := range []string{model.CanonicalCSV, model.CanonicalTXT} {
		if err := r.removeObject(ctx, r.blobKey(name)); err != nil {
			return err
		}
	}
	return nil
}

// Recreate はスロットを空にし、バケットが存在しない場合は作成する。
func (r *MinioSlotRepo) Recreate(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	}
	return r.Remove(ctx)
}

// Ping はバケットが存在するかを確認する。
func (r *MinioSlotRepo) Ping(ctx context.Context) error {
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("minio bucket does not exist: %s", r.bucket)
	}
	return nil
}

func (r *MinioSlotRepo) blobKey(canonicalName string) string {
	return r.prefix + uploadsDirName + "/" + canonicalName
}

func (r *MinioSlotRepo) metaKey() string {
	return r.prefix + slotMetaName
}

func (r *MinioSlotRepo) readMeta(ctx context.Context) (*SlotMeta, error) {
	data, found, err := r.getObject(ctx, r.metaKey())
	if err != nil || !found {
		return nil, err
	}

	var meta SlotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode slot metadata: %w", err)
	}
	if !model.IsCanonicalName(meta.CanonicalName) {
		return nil, fmt.Errorf("corrupt slot metadata: canonical name %q", meta.CanonicalName)
	}
	return &meta, nil
}

// getObject はオブジェクト全体を読み込む。存在しない場合はfound=falseを返す。
// minioのGetObjectは遅延評価のため、NoSuchKeyは読み込み時にも返りうる。
func (r *MinioSlotRepo) getObject(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := r.client.GetObject(ctx, r.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, true, nil
}

func (r *MinioSlotRepo) removeObject(ctx context.Context, key string) error {
	if err := r.client.RemoveObject(ctx, r.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}

func (r *MinioSlotRepo) discard(ctx context.Context, canonicalName string) {
	r.client.RemoveObject(ctx, r.bucket, r.blobKey(canonicalName), minio.RemoveObjectOptions{})
	r.client.RemoveObject(ctx, r.bucket, r.metaKey(), minio.RemoveObjectOptions{})
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// contentTypeFor は正規名に対応するContent-Typeを返す。
func contentTypeFor(canonicalName string) string {
	if canonicalName == model.CanonicalCSV {
		return "text/csv"
	}
	return "text/plain"
}

// normaliseEndpoint は "minio:9000" と "http(s)://minio:9000" の両形式を受け付ける。
// スキームがない場合は非TLSとして扱う。
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	return raw, false, nil
}

// compile-time interface check
var _ SlotRepository = (*MinioSlotRepo)(nil)
