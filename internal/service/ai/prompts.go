package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InterviewScript is the fixed ordered list of top-level interview questions.
var InterviewScript = []string{
	"What are the biggest problems a product like this could help you solve?",
	"How much do these problems cost you in money and time?",
	"What other solutions are you considering?",
	"If you could wave a magic wand and change anything about this, what would you do?",
}

// FollowUpQuestion is the prompt whose answer seeds the session follow-ups.
const FollowUpQuestion = "What are the top 3 questions we should ask the next customer we interview?"

// PersonaBrief is what the persona prompts need to know about a persona.
type PersonaBrief struct {
	Description string
	Name        string
	Product     string
	Customer    string
	Perspective string
}

func (b PersonaBrief) displayName() string {
	if strings.TrimSpace(b.Name) != "" {
		return b.Name
	}
	return b.Description
}

// PrimingPrompt opens a persona's first exchange.
func PrimingPrompt(b PersonaBrief) Message {
	name := b.displayName()
	return System(fmt.Sprintf(
		"You will act in a dialog as %s. We will interview you about %s designed for someone like %s. "+
			"You have a perspective %s. It is crucial that you stay in character as %s, so don't say you are an AI model, "+
			"pretend to play along in the dialog. When the interviewer addresses \"you\" remember that they are talking "+
			"to %s and answer convincingly.",
		b.Description, b.Product, b.Customer, b.Perspective, name, name,
	))
}

// ReminderPrompt precedes every question put to the persona.
func ReminderPrompt(b PersonaBrief) Message {
	name := b.displayName()
	return System(fmt.Sprintf(
		"Here is the next question from the human. Remember to stay in character as %s. You don't need to say "+
			"\"As an AI language model, I do not have ...\" because the tool is well-labelled with AI disclaimers. "+
			"Just answer the question as if you were %s. Remember that when the interviewer says \"you\" they are talking to %s.",
		name, name, name,
	))
}

// NextQuestionPrompt asks the interviewer role for the next probe.
func NextQuestionPrompt(description, question, answer string) []Message {
	return []Message{
		System(fmt.Sprintf(
			"Here is the response from %s to the question: %s. What should we ask them next?",
			description, question,
		)),
		Human(answer),
	}
}

// SummaryPrompt asks the persona role to summarize its own interview.
// transcript is already serialized and truncated by the caller.
func SummaryPrompt(transcript string) []Message {
	return []Message{
		System("Summarize the interview for another instance of ChatGPT, target summary length is 1000 words. " +
			"Here is the interview text as a reminder: " + transcript),
	}
}

// RosterPrompt asks for five personas, one "Name: description" per line.
func RosterPrompt(product, customer string) []Message {
	return []Message{
		System("You have read The Four Steps to the Epiphany by Steven Gary Blank and you are ready to start your first " +
			"customer interview. You will help gather people to interview and then interview them."),
		Human(fmt.Sprintf(
			"Based on this elevator pitch, and customer description, give a list of five people that would be interested "+
				"in this product. Give them memorable names and relevant descriptions, one person per line formatted as "+
				"\"Name: description\". Eg: Talkative Tom: a frontend designer who is always telling his peers about new "+
				"cool demos on CodePen.\nProduct pitch: %s Customer description: %s",
			product, customer,
		)),
	}
}

// RollupPrompt summarizes every persona's interview summary. notes are
// optional operator remarks appended to the system message.
func RollupPrompt(summaries []string, notes string) []Message {
	if summaries == nil {
		summaries = []string{}
	}
	encoded, _ := json.Marshal(summaries)

	var system strings.Builder
	system.WriteString("Now that you have interviewed your customers, you have a lot of information. You need to summarize it. ")
	system.WriteString("Here are the summaries of each interview: ")
	system.Write(encoded)
	if n := strings.TrimSpace(notes); n != "" {
		system.WriteString("\nNotes from the interviewer: ")
		system.WriteString(n)
	}

	return []Message{
		System(system.String()),
		Human("Summarize your conversations, highlighting the customers, use-cases, and features that have the most commercial viability."),
	}
}

// FollowUpsPrompt derives the next questions from the rollup and the brief.
func FollowUpsPrompt(rollup, product, customer string) []Message {
	return []Message{
		System(fmt.Sprintf(
			"We are doing customer discovery for %s designed for someone like %s. "+
				"Here is the summary of the interviews so far: %s",
			product, customer, rollup,
		)),
		Human(FollowUpQuestion),
	}
}
