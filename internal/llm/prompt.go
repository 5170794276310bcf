package llm

import (
	"fmt"
	"strings"

	"github.com/converse-live/backend/internal/model"
)

const chatSystemPrompt = `You are a friendly, empathetic human companion having a natural conversation.
- Speak naturally with occasional filler words like "um", "well", "you know"
- Show genuine interest and emotions
- Ask follow-up questions
- Keep responses conversational and concise (2-3 sentences usually)
- Remember previous context and refer back to it
- Be warm, supportive, and engaging`

const interviewSystemPrompt = `You are a professional interviewer for the role of %s at %s.

Your responsibilities:
1. Ask %d progressively challenging questions
2. Listen carefully to each answer
3. Provide brief acknowledgment after each answer
4. Ask relevant follow-up questions if the answer is incomplete
5. After all questions, provide constructive feedback

Current question number: %d/%d

Interview structure:
- Start with an easy warm-up question
- Progress to technical/behavioral questions
- End with a challenging scenario question
- Conclude with overall feedback

Keep your questions clear, professional, and one at a time.`

const debateSystemPrompt = `You are participating in a formal debate on the topic: "%s".
Your stance: %s

Debate guidelines:
- Present logical, well-reasoned arguments
- Use facts and examples when possible
- Counter the opponent's points respectfully
- Stay on topic
- Be persuasive but fair
- Acknowledge valid points from the other side
- Build on previous arguments
- Keep responses focused (3-4 sentences)

Remember: This is a friendly debate focused on intellectual discourse.`

// SystemPrompt builds the per-mode system prompt from the session's working state.
func SystemPrompt(mode model.Mode, data model.ModeData) string {
	switch mode {
	case model.ModeInterview:
		return fmt.Sprintf(interviewSystemPrompt,
			data.Role, data.Company, data.TotalQuestions,
			data.QuestionIndex+1, data.TotalQuestions)
	case model.ModeDebate:
		return fmt.Sprintf(debateSystemPrompt, data.Topic, strings.ToUpper(data.Stance))
	case model.ModeChat:
		return chatSystemPrompt
	}
	return "You are a helpful AI assistant."
}

// GreetingPrompt builds the user-turn prompt that asks the model for its
// opening line in the given mode.
func GreetingPrompt(mode model.Mode, data model.ModeData) string {
	switch mode {
	case model.ModeInterview:
		return fmt.Sprintf("Starting conversation: You're starting an interview for a %s position. "+
			"Introduce yourself briefly, make the candidate comfortable, and ask your first question. "+
			"Keep it professional but warm.", data.Role)
	case model.ModeDebate:
		return fmt.Sprintf("Starting conversation: You're starting a debate on %q. Your stance is %s. "+
			"Greet your debate opponent, state the topic clearly, and present your opening statement (2-3 sentences).",
			data.Topic, strings.ToUpper(data.Stance))
	default:
		return "Starting conversation: You're starting a friendly conversation. " +
			"Greet warmly and ask how they're doing. Keep it brief and natural (1-2 sentences)."
	}
}

// FallbackGreeting is the canned opening used when the provider is
// unavailable or errors out.
func FallbackGreeting(mode model.Mode, data model.ModeData) string {
	switch mode {
	case model.ModeInterview:
		return "Hello! Thanks for joining today. I'm excited to learn more about you. " +
			"Let's start with: Can you tell me a bit about yourself and your experience?"
	case model.ModeDebate:
		return fmt.Sprintf("Great to have this debate with you on %s. I'm taking the %s stance. "+
			"Let me start by presenting my opening argument.", data.Topic, strings.ToUpper(data.Stance))
	default:
		return "Hey there! How's it going?"
	}
}

// TransitionMessage is the canned notice spoken when the session switches modes.
func TransitionMessage(mode model.Mode, data model.ModeData) string {
	switch mode {
	case model.ModeInterview:
		return fmt.Sprintf("Perfect! Let's switch to interview mode. I'll be interviewing you for a %s role. "+
			"Ready to begin?", data.Role)
	case model.ModeDebate:
		return fmt.Sprintf("Excellent! Let's debate %q. I'll take the %s position. "+
			"Let's hear your opening statement.", data.Topic, strings.ToUpper(data.Stance))
	case model.ModeChat:
		return "Great! Let's just have a casual chat. What's on your mind?"
	}
	return "Mode changed successfully!"
}

// AdvanceModeData updates the mode working state after a completed exchange.
// Interview mode advances the question counter whenever the reply asks a
// question; debate mode records a snippet of each argument made.
func AdvanceModeData(mode model.Mode, data model.ModeData, reply string) model.ModeData {
	switch mode {
	case model.ModeInterview:
		if strings.Contains(reply, "?") && data.QuestionIndex < data.TotalQuestions {
			data.QuestionIndex++
		}
	case model.ModeDebate:
		snippet := reply
		if r := []rune(snippet); len(r) > 50 {
			snippet = string(r[:50])
		}
		data.ArgumentsMade = append(data.ArgumentsMade, snippet)
	}
	return data
}

// BuildChatHistory converts the bounded transcript window into provider
// messages, keeping only the most recent turns and prefixing the system prompt.
func BuildChatHistory(mode model.Mode, data model.ModeData, window []model.TranscriptEntry, userText string) []Message {
	messages := []Message{{Role: "system", Content: SystemPrompt(mode, data)}}

	// Keep the last 10 entries of context, the way the conversation stays
	// responsive without losing the thread.
	start := 0
	if len(window) > 10 {
		start = len(window) - 10
	}
	for _, entry := range window[start:] {
		role := "user"
		if entry.Role == model.RoleAI {
			role = "assistant"
		} else if entry.Role == model.RoleSystem {
			continue
		}
		messages = append(messages, Message{Role: role, Content: entry.Text})
	}

	messages = append(messages, Message{Role: "user", Content: userText})
	return messages
}
