package entry

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

// CalendarDateTag 是校验 YYYY-MM-DD 且日期真实存在的规则名
const CalendarDateTag = "calendardate"

// registrar 只注册一次，并记住那一次的结果
type registrar struct {
	once sync.Once
	err  error
}

var ginValidators registrar

// isCalendarDate 校验字段是形如 YYYY-MM-DD 的真实日期
func isCalendarDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != len(civil.Layout) {
		return false
	}
	_, err := civil.Parse(s)
	return err == nil
}

func (r *registrar) register(engine func() any) error {
	r.once.Do(func() {
		v, ok := engine().(*validator.Validate)
		if !ok {
			r.err = fmt.Errorf("gin的校验引擎不是 validator/v10")
			return
		}
		r.err = v.RegisterValidation(CalendarDateTag, isCalendarDate)
	})
	return r.err
}

// RegisterValidators 在gin的校验引擎上注册自定义规则，可重复调用。
// 首次注册失败时，之后的每次调用都返回同一个错误。
func RegisterValidators() error {
	return ginValidators.register(binding.Validator.Engine)
}
