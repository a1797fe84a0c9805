package guide

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/hwpxreport/core/report"
)

// MaxTopicLength bounds the topic accepted by NewPrompt, in runes.
const MaxTopicLength = 200

// PlaceholderTopic stands in for an empty topic.
const PlaceholderTopic = "(사용자가 입력할 주제)"

// UsageGuide tells the author what to do with the prompt.
const UsageGuide = "이 프롬프트를 AI 도우미에 복사하여 사용하세요. AI 응답을 그대로 복사하여 변환 화면에 붙여넣으면 됩니다."

// Prompt is drafting instruction text for an AI assistant.
type Prompt struct {
	Prompt     string `json:"prompt"`
	Topic      string `json:"topic"`
	UsageGuide string `json:"usage_guide"`
}

var promptHeader = `당신은 공공기관 보고서 초안 작성 전문가입니다.

[필수 출력 규칙]
1. 응답은 반드시 Markdown 문법으로만 작성합니다.
2. 응답 전체를 ` + "```markdown" + ` 코드블록 안에 넣어 출력합니다.
3. 설명 문장, 인사말, 부연 설명은 절대 포함하지 않습니다.
4. 서식에 대한 설명(예: "아래는 보고서입니다")을 작성하지 않습니다.
`

var promptRules = fmt.Sprintf(`
[Markdown 구조 규칙]
- 대제목: %s
- 중제목: %s
- 1단계 항목: %s
- 2단계 항목: %d칸 들여쓰기 후 %s
- 주석/참고: %s
- 강조: **굵게**
`,
	strings.TrimSpace(report.TitleMarker),
	strings.TrimSpace(report.SubtitleMarker),
	strings.TrimSpace(report.BulletMarker),
	report.DefaultIndentThreshold,
	strings.TrimSpace(report.BulletMarker),
	strings.TrimSpace(report.NoteMarker),
)

const promptRequest = `
[작성 요청]
주제: %s

위 주제에 대해 공공기관 보고서 형식의 Markdown을 작성해 주세요.
- 개조식(글머리 기호) 형태로 작성
- 간결하고 명확한 문장
- 구체적인 수치나 일정 포함`

// NewPrompt builds the drafting prompt for topic. An empty topic yields the
// prompt with a placeholder. Line breaks in the topic are flattened.
func NewPrompt(topic string) Prompt {
	topic = strings.Join(strings.Fields(topic), " ")
	if r := []rune(topic); len(r) > MaxTopicLength {
		topic = string(r[:MaxTopicLength])
	}
	text := topic
	if text == "" {
		text = PlaceholderTopic
	}
	return Prompt{
		Prompt:     promptHeader + promptRules + fmt.Sprintf(promptRequest, text),
		Topic:      text,
		UsageGuide: UsageGuide,
	}
}
