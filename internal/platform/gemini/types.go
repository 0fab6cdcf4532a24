// Package gemini provides an implementation of the generation interface
// using Google's Gemini API.
package gemini

// promptData represents the data passed to the prompt template
type promptData struct {
	Recipient   string
	Title       string
	Description string
	Tags        string
	DueDate     string
	Priority    string
	Recurrence  string
}

// reminderPrompt instructs the model to produce only a short plain-text
// email body; the subject line is composed deterministically outside the
// model call.
const reminderPrompt = `You are a professional task reminder assistant. Generate a concise,
motivating reminder email for the following task.

User: {{.Recipient}}
Task Name: {{.Title}}
Description: {{.Description}}
Tags: {{.Tags}}
Due Date: {{.DueDate}}
Priority: {{.Priority}}
Recurrence: {{.Recurrence}}

Requirements:
- Professional but warm and friendly tone
- 2-3 sentences maximum
- Mention the task name and due date
- Add a brief motivational closing
- Output ONLY the email body text (no subject line)
- Do NOT include HTML tags - plain text only

Email body:`
