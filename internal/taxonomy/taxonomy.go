package taxonomy

import (
	"fmt"
	"strings"
	"unicode"
)

// Category groups canonical keywords for balancing a selection.
type Category string

const (
	CompaniesAndModels Category = "AI Companies & Models"
	TechnicalConcepts  Category = "Technical Concepts"
	Applications       Category = "Applications"
	IndustryAndSociety Category = "Industry & Society"

	// Other collects articles whose keywords match no category. It is never
	// returned by Categories.
	Other Category = "Other"
)

// Categories returns the named categories in canonical order.
func Categories() []Category {
	return []Category{CompaniesAndModels, TechnicalConcepts, Applications, IndustryAndSociety}
}

type entry struct {
	keyword  string
	category Category
	synonyms []string
}

// table is ordered; tagging and category lookups walk it front to back.
var table = []entry{
	{"OpenAI", CompaniesAndModels, []string{"openai", "chatgpt", "gpt-4", "gpt-5", "gpt-4o", "gpt-5.2", "gpt-5.3", "sam altman", "codex", "dall-e", "dalle", "sora", "openai api"}},
	{"Anthropic", CompaniesAndModels, []string{"anthropic", "claude", "claude 3", "claude 4", "claude sonnet", "claude opus", "claude haiku", "dario amodei", "constitutional ai"}},
	{"Google AI", CompaniesAndModels, []string{"google ai", "gemini", "deepmind", "google deepmind", "bard", "gemini pro", "gemini ultra", "google brain", "tensorflow"}},
	{"Microsoft AI", CompaniesAndModels, []string{"microsoft ai", "copilot", "github copilot", "azure ai", "azure openai", "bing ai", "microsoft copilot", "kevin scott"}},
	{"Meta AI", CompaniesAndModels, []string{"meta ai", "llama", "llama 2", "llama 3", "llama 4", "yann lecun", "meta llama", "facebook ai"}},
	{"xAI", CompaniesAndModels, []string{"xai", "grok", "grok-2", "grok-3", "elon musk ai", "x.ai"}},
	{"Mistral", CompaniesAndModels, []string{"mistral", "mistral ai", "mixtral", "mistral large", "le chat"}},
	{"Open Source Models", CompaniesAndModels, []string{"open source llm", "hugging face", "huggingface", "ollama", "open weights", "stability ai", "stable diffusion", "falcon", "mpt", "open source ai"}},
	{"ByteDance AI", CompaniesAndModels, []string{"bytedance", "doubao", "seedance", "bytedance ai"}},
	{"Nvidia", CompaniesAndModels, []string{"nvidia", "cuda", "nvidia ai", "jensen huang", "h100", "a100", "nvidia gpu", "tensorrt", "nvidia inference"}},

	{"AI Agents", TechnicalConcepts, []string{"ai agent", "ai agents", "agentic", "agentic ai", "autonomous agent", "agent framework", "multi-agent", "agent loop", "tool use"}},
	{"LLMs", TechnicalConcepts, []string{"llm", "llms", "large language model", "large language models", "language model", "foundation model", "foundation models"}},
	{"Reinforcement Learning", TechnicalConcepts, []string{"reinforcement learning", "rl", "rlhf", "ppo", "dpo", "reward model", "policy optimization", "deep reinforcement learning"}},
	{"Multimodal AI", TechnicalConcepts, []string{"multimodal", "vision language", "vlm", "image understanding", "visual language model", "multimodal llm", "image-text"}},
	{"Code Generation", TechnicalConcepts, []string{"code generation", "ai coding", "code assistant", "coding assistant", "vibe coding", "ai programmer", "code completion", "code synthesis"}},
	{"Video Generation", TechnicalConcepts, []string{"video generation", "ai video", "text to video", "video ai", "video synthesis", "ai filmmaking", "video model"}},
	{"RAG", TechnicalConcepts, []string{"rag", "retrieval augmented", "retrieval-augmented generation", "vector search", "semantic search", "embedding search"}},
	{"Fine-tuning", TechnicalConcepts, []string{"fine-tuning", "fine tuning", "finetuning", "lora", "qlora", "adapter", "peft", "instruction tuning"}},
	{"Reasoning", TechnicalConcepts, []string{"reasoning", "chain of thought", "chain-of-thought", "cot", "o1", "o3", "o4", "deep think", "step by step reasoning"}},
	{"AI Benchmarks", TechnicalConcepts, []string{"benchmark", "benchmarking", "evaluation", "eval", "mmlu", "leaderboard", "ai benchmark", "model evaluation"}},

	{"Enterprise AI", Applications, []string{"enterprise ai", "enterprise", "business ai", "corporate ai", "ai transformation", "ai adoption", "ai implementation"}},
	{"Healthcare AI", Applications, []string{"healthcare ai", "medical ai", "health ai", "clinical ai", "diagnosis ai", "drug discovery", "biomedical ai", "health tech"}},
	{"Education AI", Applications, []string{"education ai", "edtech", "ai tutor", "learning ai", "ai education", "ai teaching", "educational ai", "language learning"}},
	{"AI Search", Applications, []string{"ai search", "searchgpt", "perplexity", "search ai", "ai-powered search", "conversational search", "semantic search engine"}},
	{"Cybersecurity AI", Applications, []string{"cybersecurity", "ai security", "security ai", "threat detection", "malware", "cyber attack", "hacking", "infosec ai"}},
	{"Robotics", Applications, []string{"robotics", "robot", "humanoid", "robotic", "manipulation", "embodied ai", "robot learning", "autonomous robot"}},
	{"AI Infrastructure", Applications, []string{"ai infrastructure", "data center", "ai chip", "ai hardware", "compute", "gpu cluster", "inference chip", "ai server", "tpu"}},
	{"Creative AI", Applications, []string{"ai art", "generative art", "ai music", "ai creative", "ai design", "creative ai", "ai animation", "ai filmmaking"}},

	{"AI Safety", IndustryAndSociety, []string{"ai safety", "alignment", "ai alignment", "existential risk", "x-risk", "ai risk", "safe ai", "safety research"}},
	{"AI Ethics", IndustryAndSociety, []string{"ai ethics", "bias", "fairness", "responsible ai", "ai bias", "ethical ai", "discrimination", "ai fairness"}},
	{"AI Regulation", IndustryAndSociety, []string{"ai regulation", "ai law", "eu ai act", "ai governance", "ai policy", "regulate ai", "ai legislation", "government ai"}},
	{"Job Market", IndustryAndSociety, []string{"job loss", "job market", "automation", "ai jobs", "workforce", "employment", "job displacement", "future of work", "ai replacing"}},
	{"AI Startups", IndustryAndSociety, []string{"ai startup", "funding", "investment", "venture capital", "vc", "seed round", "series a", "ai investment", "startup", "ipo"}},
	{"AI Research", IndustryAndSociety, []string{"research", "paper", "arxiv", "study", "researchers", "scientific", "academic", "breakthrough", "discovery"}},
	{"Accessibility", IndustryAndSociety, []string{"accessibility", "accessible", "disability", "deaf", "blind", "assistive", "inclusive ai", "a11y"}},
}

var (
	byKeyword = map[string]entry{}
	byLower   = map[string]string{}
)

func init() {
	for _, e := range table {
		byKeyword[e.keyword] = e
		byLower[strings.ToLower(e.keyword)] = e.keyword
	}
}

// Keywords returns every canonical keyword in table order.
func Keywords() []string {
	out := make([]string, len(table))
	for i, e := range table {
		out[i] = e.keyword
	}
	return out
}

// KeywordsIn returns the canonical keywords that belong to cat, in table order.
func KeywordsIn(cat Category) []string {
	var out []string
	for _, e := range table {
		if e.category == cat {
			out = append(out, e.keyword)
		}
	}
	return out
}

// Synonyms returns the match terms for a canonical keyword.
func Synonyms(keyword string) []string {
	return byKeyword[keyword].synonyms
}

// Canonical resolves a keyword case-insensitively to its canonical spelling.
func Canonical(s string) (string, error) {
	if kw, ok := byLower[strings.ToLower(strings.TrimSpace(s))]; ok {
		return kw, nil
	}
	return "", fmt.Errorf("unknown topic %q", s)
}

// Tag returns the canonical keywords whose synonyms occur in text.
// Single-word synonyms must match a whole token; phrases match as substrings.
func Tag(text string) []string {
	lower := strings.ToLower(text)
	tokens := map[string]bool{}
	for _, t := range tokenize(text) {
		tokens[t] = true
	}

	var matched []string
	for _, e := range table {
		for _, syn := range e.synonyms {
			var hit bool
			if strings.Contains(syn, " ") {
				hit = strings.Contains(lower, syn)
			} else {
				hit = tokens[syn]
			}
			if hit {
				matched = append(matched, e.keyword)
				break
			}
		}
	}
	return matched
}

// CategoryOf returns the first category, in canonical order, that owns any of
// the given keywords. Keywords outside the table are ignored.
func CategoryOf(keywords []string) Category {
	for _, cat := range Categories() {
		if InCategory(keywords, cat) {
			return cat
		}
	}
	return Other
}

// InCategory reports whether any keyword belongs to cat.
func InCategory(keywords []string, cat Category) bool {
	for _, kw := range keywords {
		if e, ok := byKeyword[kw]; ok && e.category == cat {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}
