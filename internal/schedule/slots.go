// Package schedule содержит чистые вычисления доступных слотов бронирования.
package schedule

import "time"

// SlotStep — фиксированный шаг сетки слотов. Не зависит от длительности услуги.
const SlotStep = 30 * time.Minute

// Interval — полуоткрытый интервал времени [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains сообщает, попадает ли момент t внутрь интервала.
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// overlaps сообщает, пересекаются ли два полуоткрытых интервала.
// Соприкасающиеся концами интервалы пересечением не считаются.
// Вставка пересекающихся бронирований отклоняется ограничением БД;
// здесь правило зафиксировано для арифметики интервалов.
func (i Interval) overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Generate строит сетку кандидатов-слотов рабочего дня: от времени открытия
// до времени закрытия с шагом SlotStep. day — полночь нужного дня в локальной
// зоне магазина, openingMinute и closingMinute — минуты от полуночи.
func Generate(day time.Time, openingMinute, closingMinute int) []time.Time {
	if closingMinute <= openingMinute {
		return nil
	}

	opening := day.Add(time.Duration(openingMinute) * time.Minute)
	closing := day.Add(time.Duration(closingMinute) * time.Minute)

	var slots []time.Time
	for t := opening; t.Before(closing); t = t.Add(SlotStep) {
		slots = append(slots, t)
	}
	return slots
}

// Free отбрасывает кандидатов, чьё начало лежит внутри одного из занятых
// интервалов. Слот, начинающийся ровно в момент окончания занятого
// интервала, остаётся доступным.
func Free(slots []time.Time, busy []Interval) []time.Time {
	free := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		if !insideAny(s, busy) {
			free = append(free, s)
		}
	}
	return free
}

func insideAny(t time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Contains(t) {
			return true
		}
	}
	return false
}
