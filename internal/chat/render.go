package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

const (
	listTimeLayout = "02.01 15:04"
	infoTimeLayout = "02.01.2006, 15:04"

	detailsPrefix = "🔍 "
	switchPrefix  = "🔄 "

	detailsPerRow = 3
	switchPerRow  = 2
)

func (h *Handler) mainMenu() [][]string {
	return [][]string{
		{h.tr.T("menu_current"), h.tr.T("menu_list")},
		{h.tr.T("menu_switch"), h.tr.T("menu_reset")},
		{h.tr.T("menu_details"), h.tr.T("menu_stats")},
		{h.tr.T("menu_add")},
	}
}

func (h *Handler) emptyMenu() [][]string {
	return [][]string{{h.tr.T("menu_reset"), h.tr.T("menu_back")}}
}

func (h *Handler) backInline() [][]Button {
	return [][]Button{{{Text: h.tr.T("button_back"), Data: CallbackBack}}}
}

// keyCard renders the current key screen with its exhaust and next buttons.
func (h *Handler) keyCard(titleID string, rec keypool.KeyRecord, p keypool.Pool) Reply {
	stats := p.Stats()
	return Reply{
		Text: h.tr.Tf("key_card", map[string]any{
			"Title":  h.tr.T(titleID),
			"Name":   rec.Name,
			"Value":  rec.Value,
			"Active": stats.Active,
			"Total":  stats.Total,
		}),
		Markdown: true,
		Inline: [][]Button{
			{{Text: h.tr.T("button_exhaust"), Data: CallbackExhaust + rec.Name}},
			{{Text: h.tr.T("button_next"), Data: CallbackNext}},
		},
	}
}

// keyList renders every record with status marks and a summary line.
func (h *Handler) keyList(p keypool.Pool) string {
	if len(p) == 0 {
		return h.tr.T("list_empty")
	}

	var b strings.Builder
	b.WriteString(h.tr.T("list_title"))
	b.WriteString("\n\n")

	active, inactive := 0, 0
	for i, r := range p {
		status := "🔴"
		if r.Active {
			status = "🟢"
			active++
		} else {
			inactive++
		}
		var marks string
		if r.Current {
			marks += "✅ "
		}
		if r.Exhausted {
			marks += "⛔ "
		}
		used := h.tr.T("list_never_used")
		if r.LastUsed != nil {
			used = h.tr.Tf("list_used", map[string]any{"Time": h.format(*r.LastUsed, listTimeLayout)})
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s %s*%s* - %s", i+1, status, marks, r.Name, used)
	}

	b.WriteString("\n\n")
	b.WriteString(h.tr.Tf("list_summary", map[string]any{"Active": active, "Inactive": inactive}))
	return b.String()
}

// keyInfo renders the details of one record.
func (h *Handler) keyInfo(r keypool.KeyRecord) string {
	statusEmoji, status := "🔴", h.tr.T("info_inactive")
	if r.Active {
		statusEmoji, status = "🟢", h.tr.T("info_active")
	}
	data := map[string]any{
		"Name":            r.Name,
		"Value":           r.Value,
		"StatusEmoji":     statusEmoji,
		"Status":          status,
		"Current":         "",
		"Exhausted":       "",
		"Email":           "",
		"Password":        "",
		"LastUsed":        h.tr.T("info_never"),
		"MarkedExhausted": h.tr.T("info_never"),
	}
	if r.Current {
		data["Current"] = h.tr.T("info_current")
	}
	if r.Exhausted {
		data["Exhausted"] = h.tr.T("info_exhausted")
	}
	if r.Email != "" {
		data["Email"] = h.tr.Tf("info_email", map[string]any{"Email": r.Email})
	}
	if r.Password != "" {
		data["Password"] = h.tr.Tf("info_password", map[string]any{"Password": r.Password})
	}
	if r.LastUsed != nil {
		data["LastUsed"] = h.format(*r.LastUsed, infoTimeLayout)
	}
	if r.LastMarkedExhausted != nil {
		data["MarkedExhausted"] = h.format(*r.LastMarkedExhausted, infoTimeLayout)
	}
	return h.tr.Tf("info", data)
}

func (h *Handler) infoInline(name string) [][]Button {
	return [][]Button{
		{
			{Text: h.tr.T("button_activate"), Data: CallbackActivate + name},
			{Text: h.tr.T("button_deactivate"), Data: CallbackExhaust + name},
		},
		{{Text: h.tr.T("button_delete"), Data: CallbackDelete + name}},
		{{Text: h.tr.T("button_back_to_list"), Data: CallbackDetails}},
	}
}

func (h *Handler) statsText(s keypool.Stats) string {
	lastUsed := s.LastUsed
	if lastUsed == "" {
		lastUsed = h.tr.T("stats_no_data")
	}
	return h.tr.Tf("stats", map[string]any{
		"Total":     s.Total,
		"Active":    s.Active,
		"Exhausted": s.Exhausted,
		"Unused":    s.Unused,
		"LastUsed":  lastUsed,
	})
}

// picker lays out prefixed names in rows of perRow followed by a back row.
func (h *Handler) picker(prefix string, names []string, perRow int) [][]string {
	rows := make([][]string, 0, len(names)/perRow+2)
	for i := 0; i < len(names); i += perRow {
		end := min(i+perRow, len(names))
		row := make([]string, 0, end-i)
		for _, n := range names[i:end] {
			row = append(row, prefix+n)
		}
		rows = append(rows, row)
	}
	return append(rows, []string{h.tr.T("menu_back")})
}

func (h *Handler) format(t time.Time, layout string) string {
	return t.In(h.loc).Format(layout)
}
