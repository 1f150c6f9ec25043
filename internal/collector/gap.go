package collector

import (
	"time"

	"ksync/internal/market"
)

// ResolveGaps 计算请求区间内尚未入库的子区间。
// 纯函数：相同输入（含游标）必然产出相同结果，不依赖任何隐藏状态。
//
// cursor 为已入库的最新 open_time；nil 表示该序列还没有任何数据。
// 返回的区间为半开 [start, end)。终点取 floor(min(now, requestedEnd))，
// 即最近一根已收盘 K 线的下一个边界——半开区间因此恰好覆盖到最后一根
// 已收盘 K 线为止，尚未收盘的当前周期永远不会被请求。
// 起点永远在游标之后：已入库的部分绝不重复请求。
func ResolveGaps(iv market.Interval, cursor *time.Time, requestedStart, requestedEnd, now time.Time) []market.TimeRange {
	ref := requestedEnd
	if ref.IsZero() || now.Before(ref) {
		ref = now
	}
	effectiveEnd := iv.Floor(ref)

	if cursor == nil {
		gap := market.TimeRange{Start: requestedStart, End: effectiveEnd}
		if gap.IsEmpty() {
			return nil
		}
		return []market.TimeRange{gap}
	}

	// 游标已到达最近已收盘 K 线时无增量
	gap := market.TimeRange{Start: iv.Next(*cursor), End: effectiveEnd}
	if gap.IsEmpty() {
		return nil
	}
	return []market.TimeRange{gap}
}
