package bitcask

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/forever-free1/kvs/storage"
)

func TestParseSegmentName(t *testing.T) {
	tests := []struct {
		name    string
		want    uint64
		wantErr bool
	}{
		{"0.log", 0, false},
		{"12.log", 12, false},
		{"18446744073709551615.log", 18446744073709551615, false},
		{"007.log", 0, true},
		{"-1.log", 0, true},
		{"+1.log", 0, true},
		{".log", 0, true},
		{"1.data", 0, true},
		{"abc.log", 0, true},
		{"1.log.tmp", 0, true},
		{"18446744073709551616.log", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSegmentName(tt.name)
		if tt.wantErr {
			if !errors.Is(err, storage.ErrPathFormat) {
				t.Errorf("ParseSegmentName(%q) 期望 ErrPathFormat, 得到: %v", tt.name, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseSegmentName(%q) = %d, %v, want %d", tt.name, got, err, tt.want)
		}
	}
}

func TestListSegments_Ascending(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []uint64{10, 2, 33, 0, 9} {
		if err := os.WriteFile(SegmentPath(dir, id), nil, 0644); err != nil {
			t.Fatalf("创建段文件失败: %v", err)
		}
	}

	ids, err := ListSegments(dir)
	if err != nil {
		t.Fatalf("ListSegments 失败: %v", err)
	}
	want := []uint64{0, 2, 9, 10, 33}
	if len(ids) != len(want) {
		t.Fatalf("数量不匹配: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("顺序错误: got %v, want %v", ids, want)
			break
		}
	}
}

func TestListSegments_ForeignEntries(t *testing.T) {
	t.Run("外来文件", func(t *testing.T) {
		dir := t.TempDir()
		os.WriteFile(SegmentPath(dir, 1), nil, 0644)
		os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644)
		if _, err := ListSegments(dir); !errors.Is(err, storage.ErrPathFormat) {
			t.Errorf("期望 ErrPathFormat, 得到: %v", err)
		}
	})
	t.Run("子目录", func(t *testing.T) {
		dir := t.TempDir()
		os.Mkdir(filepath.Join(dir, "5.log"), 0755)
		if _, err := ListSegments(dir); !errors.Is(err, storage.ErrPathFormat) {
			t.Errorf("期望 ErrPathFormat, 得到: %v", err)
		}
	})
	t.Run("目录不存在", func(t *testing.T) {
		if _, err := ListSegments(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, storage.ErrIO) {
			t.Errorf("期望 ErrIO, 得到: %v", err)
		}
	})
}
