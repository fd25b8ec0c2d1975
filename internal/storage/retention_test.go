package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objectKeys(objects []Object) []string {
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	return keys
}

// dailyArchives returns one archive per day, the newest first
func dailyArchives(now time.Time, days int) []Object {
	objects := make([]Object, days)
	for i := range objects {
		objects[i] = Object{
			Key:      now.AddDate(0, 0, -i).Format("2006-01-02") + ".tar.zst",
			Size:     100,
			Modified: now.Add(-time.Duration(i)*24*time.Hour - time.Hour),
		}
	}
	return objects
}

func TestIsArchiveKey(t *testing.T) {
	assert.True(t, IsArchiveKey("nightly.tar"))
	assert.True(t, IsArchiveKey("db1/nightly.tar.gz"))
	assert.True(t, IsArchiveKey("nightly.tar.zst.enc"))
	assert.False(t, IsArchiveKey("notes.txt"))
	assert.False(t, IsArchiveKey("nightly.tar.bak"))
	assert.False(t, IsArchiveKey("tar.d/readme"))
}

func TestSelectExpired_MaxArchives(t *testing.T) {
	now := time.Now()
	objects := dailyArchives(now, 5)

	kept, expired := SelectExpired(objects, RetentionConfig{MaxArchives: 2}, now)
	assert.Equal(t, objectKeys(objects[:2]), objectKeys(kept))
	assert.Equal(t, objectKeys(objects[2:]), objectKeys(expired))
}

func TestSelectExpired_MaxAge(t *testing.T) {
	now := time.Now()
	objects := dailyArchives(now, 5)

	kept, expired := SelectExpired(objects, RetentionConfig{MaxAge: 48 * time.Hour}, now)
	assert.Len(t, kept, 2)
	assert.Len(t, expired, 3)
}

func TestSelectExpired_AlwaysKeepsNewest(t *testing.T) {
	now := time.Now()
	objects := dailyArchives(now, 3)
	// unsorted input
	objects[0], objects[2] = objects[2], objects[0]

	kept, expired := SelectExpired(objects, RetentionConfig{MaxAge: time.Minute}, now)
	require.Len(t, kept, 1)
	assert.Equal(t, now.Format("2006-01-02")+".tar.zst", kept[0].Key)
	assert.Len(t, expired, 2)
}

func TestSelectExpired_KeepWeekly(t *testing.T) {
	now := time.Now()
	objects := dailyArchives(now, 21)

	kept, _ := SelectExpired(objects, RetentionConfig{KeepWeekly: 3}, now)
	require.Len(t, kept, 3)
	for i, obj := range kept {
		assert.Equal(t, i, int(now.Sub(obj.Modified)/(7*24*time.Hour)), "one archive per week")
	}
}

func TestSelectExpired_Empty(t *testing.T) {
	kept, expired := SelectExpired(nil, RetentionConfig{MaxArchives: 1}, time.Now())
	assert.Empty(t, kept)
	assert.Empty(t, expired)
}

func TestRetentionConfig_Validate(t *testing.T) {
	assert.NoError(t, RetentionConfig{}.Validate())
	assert.False(t, RetentionConfig{}.Enabled())
	assert.True(t, RetentionConfig{KeepMonthly: 1}.Enabled())

	err := RetentionConfig{MaxArchives: -1, KeepDaily: -2}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_archives")
	assert.Contains(t, err.Error(), "keep counts")
}

func TestApplyRetention(t *testing.T) {
	provider, base := newTestLocalProvider(t)
	ctx := context.Background()
	now := time.Now()

	for i, name := range []string{"a.tar.gz", "b.tar.gz", "c.tar.gz"} {
		require.NoError(t, provider.Upload(ctx, name, strings.NewReader("archive"), nil))
		modified := now.Add(-time.Duration(3-i) * time.Hour)
		require.NoError(t, os.Chtimes(provider.Location(name), modified, modified))
	}
	require.NoError(t, provider.Upload(ctx, "notes.txt", strings.NewReader("keep me"), nil))

	config := RetentionConfig{MaxArchives: 1}

	result, err := ApplyRetention(ctx, provider, config, "", true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, []string{"c.tar.gz"}, objectKeys(result.Kept))
	assert.Equal(t, []string{"b.tar.gz", "a.tar.gz"}, objectKeys(result.Expired))
	assert.Equal(t, int64(14), result.FreedBytes)
	assert.FileExists(t, filepath.Join(base, "backups", "a.tar.gz"))

	result, err = ApplyRetention(ctx, provider, config, "", false)
	require.NoError(t, err)
	assert.Len(t, result.Expired, 2)
	assert.NoFileExists(t, filepath.Join(base, "backups", "a.tar.gz"))
	assert.NoFileExists(t, filepath.Join(base, "backups", "b.tar.gz"))
	assert.FileExists(t, filepath.Join(base, "backups", "c.tar.gz"))
	assert.FileExists(t, filepath.Join(base, "backups", "notes.txt"))
}

func TestApplyRetention_RequiresRule(t *testing.T) {
	provider, _ := newTestLocalProvider(t)
	_, err := ApplyRetention(context.Background(), provider, RetentionConfig{}, "", true)
	require.Error(t, err)

	var configErr *ConfigError
	assert.ErrorAs(t, err, &configErr)
}
