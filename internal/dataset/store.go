package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var dsLog = logrus.WithField("component", "dataset")

// 键布局：grad:<graduated_at 秒, 左补零 12 位>:<mint>
// 时间前缀让时间范围扫描天然有序
const keyPrefix = "grad:"

// Store 毕业记录的 Badger 存储
type Store struct {
	db   *badger.DB
	path string
}

// Open 打开（必要时创建）数据集
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("dataset: path is required")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Path 数据集所在目录
func (s *Store) Path() string { return s.path }

// Close 关闭数据集
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func recordKey(graduatedAt int64, mint string) []byte {
	return []byte(fmt.Sprintf("%s%012d:%s", keyPrefix, graduatedAt, mint))
}

// Put 写入一条毕业记录，同一 mint 同一毕业时刻覆盖
func (s *Store) Put(rec *Record) error {
	if rec.Mint == "" {
		return fmt.Errorf("dataset: record without mint")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("dataset: marshal %s: %w", rec.Mint, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.GraduatedAt, rec.Mint), raw)
	})
}

// Get 按毕业时刻和 mint 读取一条记录；不存在返回 nil
func (s *Store) Get(graduatedAt int64, mint string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(graduatedAt, mint))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			rec = new(Record)
			return json.Unmarshal(val, rec)
		})
	})
	return rec, err
}

// Range 按毕业时间升序遍历 [from, to) 秒区间内的记录
// fn 返回 false 终止遍历；to 为 0 表示不设上限
func (s *Store) Range(from, to int64, fn func(rec *Record) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		start := []byte(fmt.Sprintf("%s%012d:", keyPrefix, from))
		for it.Seek(start); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if to > 0 && rec.GraduatedAt >= to {
				return nil
			}
			if !fn(&rec) {
				return nil
			}
		}
		return nil
	})
}

// All 读出 [from, to) 区间的全部记录
func (s *Store) All(from, to int64) ([]*Record, error) {
	var out []*Record
	err := s.Range(from, to, func(rec *Record) bool {
		out = append(out, rec)
		return true
	})
	return out, err
}

// Count 统计记录总数
func (s *Store) Count() (int, error) {
	n := 0
	err := s.Range(0, 0, func(*Record) bool {
		n++
		return true
	})
	return n, err
}

// ImportJSON 从采集脚本的 JSON 数组导入记录，返回导入条数
func (s *Store) ImportJSON(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	imported := 0
	for i := range records {
		if err := s.Put(&records[i]); err != nil {
			dsLog.Warnf("skip record %s: %v", records[i].Mint, err)
			continue
		}
		imported++
	}
	dsLog.Infof("imported %d/%d records from %s", imported, len(records), path)
	return imported, nil
}

// ExportJSON 把 [from, to) 的记录导出为 JSON 数组
func (s *Store) ExportJSON(path string, from, to int64) (int, error) {
	records, err := s.All(from, to)
	if err != nil {
		return 0, err
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return 0, fmt.Errorf("dataset: write %s: %w", path, err)
	}
	return len(records), nil
}

// LoadJSON 直接从 JSON 文件读记录数组，不经过存储（小数据集回测用）
func LoadJSON(path string) ([]*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	out := make([]*Record, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out, nil
}
