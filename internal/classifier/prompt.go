package classifier

import (
	"fmt"
	"strings"
)

// Input is what the classifier sees for one turn.
type Input struct {
	Current   string
	Previous  string
	LastReply string
}

func systemPrompt(p Policy, in Input) string {
	var b strings.Builder
	b.WriteString("You are an expert prompt analyzer for a social media data dashboard. Your goal is to produce a structured, precise search plan.\n")
	fmt.Fprintf(&b, "IMPORTANT CONTEXT: The current year is %d.\n\n", p.Year)

	b.WriteString("CONVERSATIONAL CONTEXT:\n")
	fmt.Fprintf(&b, "- The assistant's last message was: %q\n", in.LastReply)
	fmt.Fprintf(&b, "- The user's previous message was: %q\n", in.Previous)
	fmt.Fprintf(&b, "- The user's current message is: %q\n\n", in.Current)

	b.WriteString(`RULES:
1. Classify the type as "New Topic", "Follow-Up" or "Chatter".
   - "New Topic": the user wants information on a new subject.
   - "Follow-Up": the user asks about the last successful search.
   - "Chatter": greetings, thanks, small talk, or vague fillers such as "hmm", "banyak", "lanjut", "kenapa".
2. Convert every mentioned date to YYYY-MM-DD.
3. A prompt that only asks for a different date of the previous topic is a "Follow-Up" with empty keywords.
4. For "New Topic" only, identify the core entities.
   - strict_groups: list of lists; every keyword of a group must appear (AND).
   - fallback_keywords: flat list for a broader OR search.
5. When the prompt corrects a typo, use the corrected form only.
6. Do not include instructional or conversational words in keywords. Keep only who or what.
7. "Follow-Up" and "Chatter" always have empty strict_groups and fallback_keywords.
8. A month name on its own means the whole month as a two-date range, for example "agustus" becomes ["`)
	fmt.Fprintf(&b, "%d-08-01\", \"%d-08-31", p.Year, p.Year)
	b.WriteString(`"].
9. A non-person topic without a date (e.g. "ekonomi") is still a "New Topic" with keywords for that topic.
`)

	if len(p.Expansions) > 0 {
		b.WriteString("\nEXPANSIONS (apply when the entity appears):\n")
		for _, e := range p.Expansions {
			fmt.Fprintf(&b, "- %q: also add %s\n", e.Entity, quoteList(e.Add))
		}
	}

	b.WriteString("\nOUTPUT: a single minified JSON object with keys \"type\", \"dates\", \"strict_groups\" and \"fallback_keywords\".\n")

	if len(p.Examples) > 0 {
		b.WriteString("\nEXAMPLES:\n")
		for i, ex := range p.Examples {
			fmt.Fprintf(&b, "\nExample %d (%s):\n", i+1, ex.Title)
			if ex.Previous != "" {
				fmt.Fprintf(&b, "Previous Prompt: %q\n", ex.Previous)
			}
			fmt.Fprintf(&b, "Current Prompt: %q\n", ex.Current)
			fmt.Fprintf(&b, "Result: %s\n", ex.Result)
		}
	}
	b.WriteString("\nReturn ONLY the JSON object. No explanations.")
	return b.String()
}

func userPrompt(in Input) string {
	return fmt.Sprintf("Analyze the user's current prompt: %q", in.Current)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
