package content

import (
	"fmt"
	"strings"
)

// PromptData carries the lead fields the prompts interpolate
type PromptData struct {
	FirstName  string
	Company    string
	Position   string
	Department string
	Profile    string
	Angle      string
}

// ProfilePrompt asks the generation service for a short prospect
// profile used as grounding for the three follow-ups.
func ProfilePrompt(d PromptData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "請根據以下資訊撰寫一段潛在客戶簡介（150字以內）：\n")
	fmt.Fprintf(&b, "姓名：%s\n", d.FirstName)
	fmt.Fprintf(&b, "公司：%s\n", d.Company)
	fmt.Fprintf(&b, "職位：%s\n", d.Position)
	if d.Department != "" {
		fmt.Fprintf(&b, "部門：%s\n", d.Department)
	}
	b.WriteString("直接輸出簡介內容，不要加任何前言。")
	return b.String()
}

// AnglesPrompt asks for three one-line thematic hooks, one per
// follow-up email, returned one per line.
func AnglesPrompt(d PromptData) string {
	var b strings.Builder
	b.WriteString("根據以下客戶簡介，提出三個開發信切入點，每行一個，不要編號：\n")
	b.WriteString(d.Profile)
	return b.String()
}

// FollowUpPrompt asks for one complete follow-up email built on one
// angle. The reply must carry the subject and body markers Parse
// understands.
func FollowUpPrompt(d PromptData, m Markers, sequence int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "請撰寫第 %d 封開發信，收件人是 %s（%s，%s）。\n", sequence, d.FirstName, d.Company, d.Position)
	fmt.Fprintf(&b, "切入點：%s\n", d.Angle)
	fmt.Fprintf(&b, "客戶簡介：%s\n", d.Profile)
	fmt.Fprintf(&b, "輸出格式：\n%s：<一行主旨>\n%s：\n<信件內文>", m.Subject, m.Body)
	return b.String()
}

// ParseAngles splits the angles reply into exactly want lines,
// dropping blanks and list numbering. Short replies are padded with
// the last angle so generation can proceed; empty replies return ok
// false.
func ParseAngles(text string, want int) ([]string, bool) {
	var angles []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.、) ")
		if line != "" {
			angles = append(angles, line)
		}
		if len(angles) == want {
			break
		}
	}
	if len(angles) == 0 {
		return nil, false
	}
	for len(angles) < want {
		angles = append(angles, angles[len(angles)-1])
	}
	return angles, true
}
