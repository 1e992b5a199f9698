package bot

import (
	"fmt"
	"strings"
	"time"

	"sitewatch/internal/monitor"
	"sitewatch/internal/storage"
	"sitewatch/pkg/tgui"
)

func statusEmoji(st storage.Status) string {
	switch st {
	case storage.StatusOnline:
		return "✅"
	case storage.StatusOffline:
		return "❌"
	default:
		return "❔"
	}
}

func welcomeText(firstName string) string {
	who := "there"
	if firstName != "" {
		who = tgui.Esc(firstName).String()
	}
	return "Hi " + who + "! I watch your websites and message you the moment one goes down or comes back.\n\n" +
		"Use the menu below to add your first site."
}

func helpText() string {
	return strings.Join([]string{
		tgui.B("Commands").String(),
		"/add – watch a new site (I'll ask for the URL, then a name)",
		"/list – your sites with their last known state",
		"/check – probe all your sites right now",
		"/status – one-line summary",
		"/edit – rename a site or change its URL",
		"/delete – stop watching a site",
		"/cancel – abort the current dialog",
		"",
		"Sites are checked every few minutes. You get a message only when a site changes state.",
	}, "\n")
}

func formatTargetLine(t *storage.Target) tgui.H {
	line := tgui.H(statusEmoji(t.Status)+" ") + tgui.Link(t.Name, t.URL) + "\n    " + tgui.Code(t.URL)
	var extra []string
	if t.LastResponseMS != nil && t.Status == storage.StatusOnline {
		extra = append(extra, fmt.Sprintf("%d ms", *t.LastResponseMS))
	}
	if t.LastCheckedAt != nil {
		extra = append(extra, "checked "+ago(*t.LastCheckedAt))
	}
	if len(extra) > 0 {
		line += "\n    " + tgui.I(strings.Join(extra, ", "))
	}
	return line
}

func formatTargetList(targets []*storage.Target) string {
	lines := make([]tgui.H, 0, len(targets)+1)
	lines = append(lines, tgui.B("Your sites"))
	for _, t := range targets {
		lines = append(lines, formatTargetLine(t))
	}
	return tgui.JoinH("\n", lines...).String()
}

func formatResult(res monitor.Result) string {
	t := res.Target
	if res.Status == storage.StatusOnline {
		return fmt.Sprintf("%s %s – online, %d ms", statusEmoji(res.Status), tgui.B(t.Name), res.ResponseMS)
	}
	reason := "no response"
	if res.HTTPStatus != 0 {
		reason = fmt.Sprintf("status %d", res.HTTPStatus)
	} else if res.Err != "" {
		reason = tgui.Esc(res.Err).String()
	}
	return fmt.Sprintf("%s %s – down (%s)", statusEmoji(res.Status), tgui.B(t.Name), reason)
}

func formatResults(results []monitor.Result) string {
	lines := make([]tgui.H, 0, len(results)+1)
	lines = append(lines, tgui.B("Check results"))
	for _, res := range results {
		lines = append(lines, tgui.H(formatResult(res)))
	}
	return tgui.JoinH("\n", lines...).String()
}

func formatStatusSummary(targets []*storage.Target) string {
	var online, offline, unknown int
	for _, t := range targets {
		switch t.Status {
		case storage.StatusOnline:
			online++
		case storage.StatusOffline:
			offline++
		default:
			unknown++
		}
	}
	if len(targets) == 0 {
		return "You aren't watching any sites yet."
	}
	return fmt.Sprintf("%s\nWatching %d site(s): ✅ %d online, ❌ %d offline, ❔ %d unchecked",
		tgui.B("Status"), len(targets), online, offline, unknown)
}

func formatUsers(users []*storage.User) string {
	if len(users) == 0 {
		return "No users yet."
	}
	lines := make([]string, 0, len(users)+1)
	lines = append(lines, tgui.B("Users").String())
	for _, u := range users {
		name := strings.TrimSpace(u.FirstName + " " + u.LastName)
		if name == "" {
			name = "(no name)"
		}
		handle := ""
		if u.Username != "" {
			handle = " @" + tgui.Esc(u.Username).String()
		}
		lines = append(lines, fmt.Sprintf("%s%s – %d site(s), %s, seen %s",
			tgui.Esc(name), handle, u.TargetCount, u.Role, ago(u.LastActivity)))
	}
	return strings.Join(lines, "\n")
}

func formatStats(st storage.Stats) string {
	return strings.Join([]string{
		tgui.B("Bot stats").String(),
		fmt.Sprintf("Sites: %d (✅ %d / ❌ %d / ❔ %d)", st.Targets, st.Online, st.Offline, st.Unknown),
		fmt.Sprintf("Users: %d (%d active)", st.Users, st.ActiveUsers),
	}, "\n")
}

func ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
