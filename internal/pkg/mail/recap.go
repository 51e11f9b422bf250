package mail

import (
	"fmt"
	"strings"
)

// RecapData feeds the weekly recap template. Counts cover the seven days
// ending at WeekEnd; streak and total points are the current values.
type RecapData struct {
	OwnerName     string
	AppName       string
	WeekStart     string
	WeekEnd       string
	EntryCount    int
	DaysWritten   int
	PointsEarned  int
	TotalPoints   int
	CurrentStreak int
	LongestStreak int
	TopMood       string
	MintedCount   int
}

const weeklyRecapTpl = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
</head>
<body style="font-family:ui-sans-serif,system-ui,-apple-system,sans-serif;background:#f5f5f5;padding:20px;margin:0">
<div style="max-width:560px;margin:0 auto;background:#fff;border-radius:12px;padding:28px;border:1px solid #e5e7eb">
  <h2 style="color:#111827;margin:0 0 4px">Your week in {{.AppName}}</h2>
  <p style="color:#6b7280;font-size:13px;margin:0 0 20px">{{.WeekStart}} – {{.WeekEnd}}</p>
  <p style="color:#111827;font-size:14px;line-height:22px">Hi {{.OwnerName}}, here is what your journal looked like this week:</p>
  <table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background:#f9fafb;border-radius:8px;margin:16px 0">
    <tbody>
      <tr>
        <td style="padding:14px 18px;font-size:13px;color:#374151">Entries written</td>
        <td style="padding:14px 18px;font-size:13px;color:#111827;font-weight:600;text-align:right">{{.EntryCount}}</td>
      </tr>
      <tr>
        <td style="padding:14px 18px;font-size:13px;color:#374151;border-top:1px solid #e5e7eb">Days journaled</td>
        <td style="padding:14px 18px;font-size:13px;color:#111827;font-weight:600;text-align:right;border-top:1px solid #e5e7eb">{{.DaysWritten}} / 7</td>
      </tr>
      <tr>
        <td style="padding:14px 18px;font-size:13px;color:#374151;border-top:1px solid #e5e7eb">Clarity points earned</td>
        <td style="padding:14px 18px;font-size:13px;color:#111827;font-weight:600;text-align:right;border-top:1px solid #e5e7eb">+{{.PointsEarned}} ({{.TotalPoints}} total)</td>
      </tr>
      <tr>
        <td style="padding:14px 18px;font-size:13px;color:#374151;border-top:1px solid #e5e7eb">Current streak</td>
        <td style="padding:14px 18px;font-size:13px;color:#111827;font-weight:600;text-align:right;border-top:1px solid #e5e7eb">{{.CurrentStreak}} days (best: {{.LongestStreak}})</td>
      </tr>
      {{if .TopMood}}
      <tr>
        <td style="padding:14px 18px;font-size:13px;color:#374151;border-top:1px solid #e5e7eb">Most frequent mood</td>
        <td style="padding:14px 18px;font-size:13px;color:#111827;font-weight:600;text-align:right;border-top:1px solid #e5e7eb">{{.TopMood}}</td>
      </tr>
      {{end}}
      {{if .MintedCount}}
      <tr>
        <td style="padding:14px 18px;font-size:13px;color:#374151;border-top:1px solid #e5e7eb">Entries minted as NFTs</td>
        <td style="padding:14px 18px;font-size:13px;color:#111827;font-weight:600;text-align:right;border-top:1px solid #e5e7eb">{{.MintedCount}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
  <p style="color:#6b7280;font-size:12px;line-height:20px">Open the app to keep the streak going. This recap can be turned off under Settings → Notifications.</p>
  <hr style="border:none;border-top:1px solid #e5e7eb;margin:20px 0" />
  <p style="color:#9ca3af;font-size:10px;text-align:center;margin:0">Sent automatically by {{.AppName}} · ©{{year}}</p>
</div>
</body>
</html>`

// SendWeeklyRecap renders and sends the recap to the owner's inbox.
func (s *Sender) SendWeeklyRecap(to string, data RecapData) error {
	if strings.TrimSpace(data.AppName) == "" {
		data.AppName = "Clarity"
	}
	if strings.TrimSpace(data.OwnerName) == "" {
		data.OwnerName = "there"
	}
	html, err := renderTemplate(weeklyRecapTpl, data)
	if err != nil {
		return err
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Your week: %d entries, %d-day streak", data.AppName, data.EntryCount, data.CurrentStreak),
		HTML:    html,
	})
}
