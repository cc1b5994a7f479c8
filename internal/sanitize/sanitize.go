// Package sanitize очищает строки от фрагментов, похожих на SQL- и XSS-инъекции,
// перед записью в бэкенд.
package sanitize

import (
	"reflect"
	"regexp"
	"strings"
)

// maxPasses ограничивает число проходов до неподвижной точки.
const maxPasses = 8

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
	regexp.MustCompile(`(?s)<[^>]*>`),
	regexp.MustCompile(`[<>]`),
	regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)'\s*or\s*'?\w+'?\s*=\s*'?\w+'?`),
	regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
	regexp.MustCompile(`(?i)\b(drop|truncate|alter)\s+(table|database)\b`),
	regexp.MustCompile(`(?i)\binsert\s+into\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?i)\bupdate\s+\w+\s+set\b`),
	regexp.MustCompile(`(?i)\bexec(ute)?\s*\(`),
	regexp.MustCompile(`(?i)\bxp_\w*`),
	regexp.MustCompile(`--|/\*|\*/|;`),
}

// String удаляет опасные фрагменты и обрезает пробелы по краям.
// Повторное применение не меняет результат.
func String(s string) string {
	for i := 0; i < maxPasses; i++ {
		next := s
		for _, re := range patterns {
			next = re.ReplaceAllString(next, "")
		}
		next = strings.TrimSpace(next)
		if next == s {
			return next
		}
		s = next
	}
	return s
}

// Struct применяет String ко всем экспортируемым строковым полям структуры по указателю.
// Поля с тегом sanitize:"-" пропускаются.
func Struct(ptr any) {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	walk(v.Elem())
}

func walk(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			walk(v.Elem())
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(String(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			walk(v.Index(i))
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("sanitize") == "-" {
				continue
			}
			walk(v.Field(i))
		}
	}
}
