package enrich

import (
	"fmt"
	"strings"
)

const (
	selectSystem    = "You are a job search assistant that helps identify the most relevant job posting URLs."
	summarizeSystem = "You are a job description analyzer that creates clear, concise summaries."
)

func extractPrompt(text string) string {
	return "Extract the company name and job title from this application confirmation email.\n" +
		"Return the result in this exact format: COMPANY_NAME|JOB_TITLE\n\n" +
		"Email content:\n" + text
}

func selectPrompt(results []SearchResult, company, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given these search results for a %s position at %s, which URL is most likely to be the official job posting?\n\n", title, company)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. Title: %s\n   URL: %s\n   Description: %s\n\n", i+1, r.Title, r.URL, r.Snippet)
	}
	b.WriteString("Consider:\n")
	b.WriteString("1. Official company career pages or ATS systems (greenhouse, lever, workday, ashby) are preferred\n")
	b.WriteString("2. The posting should match both the company and the job title\n")
	b.WriteString("3. More recent postings are better\n\n")
	b.WriteString("Return only the URL.")
	return b.String()
}

func summarizePrompt(raw string) string {
	return "Summarize this job description into these sections:\n" +
		"1. Key Responsibilities\n" +
		"2. Required Qualifications\n" +
		"3. Preferred Qualifications\n" +
		"4. Notable Benefits or Company Info\n\n" +
		"Use bullet points under each section.\n\n" +
		"Job description:\n" + raw
}
