package tabledef

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load 从定义文件加载表定义，格式由扩展名决定。
// 支持 .json、.yaml、.yml、.toml、.ini
func Load(path string) (*Def, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read definition file [%s]", path)
	}

	var def Def
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(buf, &def)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(buf, &def)
	case ".toml":
		err = toml.Unmarshal(buf, &def)
	case ".ini":
		err = decodeINI(buf, &def)
	default:
		return nil, errors.Errorf("unsupported definition format [%s]", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to decode definition file [%s]", path)
	}

	if err := validate.Struct(&def); err != nil {
		return nil, errors.WithMessagef(err, "invalid definition file [%s]", path)
	}
	return &def, nil
}

// decodeINI 解析 INI 形态的定义。结构化程度受限于 INI 本身：
//
//	[table]            表级标量
//	[source]           kind 键选择后端，其余键作为数据源参数
//	[column.<key>]     一个列一个子节
//	[filter.<key>]     一个过滤器一个子节
//	[action.<key>]     一个动作一个子节
func decodeINI(buf []byte, def *Def) error {
	file, err := ini.Load(buf)
	if err != nil {
		return err
	}

	if section := file.Section("table"); section != nil {
		if err := section.MapTo(def); err != nil {
			return errors.WithMessage(err, "failed to map [table] section")
		}
	}

	if file.HasSection("source") {
		section := file.Section("source")
		src := &SourceDef{Options: make(map[string]interface{})}
		for _, key := range section.Keys() {
			if key.Name() == "kind" {
				src.Kind = key.Value()
				continue
			}
			src.Options[key.Name()] = key.Value()
		}
		def.Source = src
	}

	for _, section := range file.Sections() {
		name := section.Name()
		switch {
		case strings.HasPrefix(name, "column."):
			column := &ColumnDef{Key: strings.TrimPrefix(name, "column.")}
			if err := section.MapTo(column); err != nil {
				return errors.WithMessagef(err, "failed to map [%s] section", name)
			}
			def.Columns = append(def.Columns, column)
		case strings.HasPrefix(name, "filter."):
			filter := &FilterDef{Key: strings.TrimPrefix(name, "filter.")}
			if err := section.MapTo(filter); err != nil {
				return errors.WithMessagef(err, "failed to map [%s] section", name)
			}
			def.Filters = append(def.Filters, filter)
		case strings.HasPrefix(name, "action."):
			act := &ActionDef{Key: strings.TrimPrefix(name, "action.")}
			if err := section.MapTo(act); err != nil {
				return errors.WithMessagef(err, "failed to map [%s] section", name)
			}
			def.Actions = append(def.Actions, act)
		}
	}
	return nil
}
