package validate

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

var (
	validate   *validator.Validate
	translator ut.Translator
	once       sync.Once
)

// Get 获取全局验证器与中文翻译器
func Get() (*validator.Validate, ut.Translator) {
	once.Do(func() {
		validate = validator.New()
		// 错误信息中使用 json 字段名
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})

		zhTrans := zh.New()
		uni := ut.New(zhTrans, zhTrans)
		translator, _ = uni.GetTranslator("zh")
		_ = zh_translations.RegisterDefaultTranslations(validate, translator)
	})
	return validate, translator
}

// Struct 校验结构体，返回第一条中文错误信息
func Struct(data interface{}) error {
	v, trans := Get()
	err := v.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return errors.New(fieldErrs[0].Translate(trans))
	}
	return err
}

// AbsoluteURL 判断是否为带 scheme 与 host 的绝对 URL
func AbsoluteURL(raw string) bool {
	v, _ := Get()
	if err := v.Var(raw, "required,url"); err != nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}
