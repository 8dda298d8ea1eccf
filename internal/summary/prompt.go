package summary

const DefaultConfigName = "Default"

// DefaultPrompt is the built-in global system prompt.
const DefaultPrompt = `Summarize this article for someone who learns by understanding the "why" first, then concrete examples.

Structure your summary as:
1. **Core Insight** - The fundamental idea or thesis (1-2 sentences)
2. **Why It Matters** - Context and significance
3. **Key Points** - Bullet points of main arguments/findings
4. **Concrete Examples** - Specific examples or case studies mentioned
5. **Actionable Takeaways** - What can be applied immediately

Keep the tone conversational but precise. Focus on signal over noise.`
