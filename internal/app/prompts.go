package app

// systemInstruction fixes the assistant persona and the hard grounding rule:
// verse content comes from tool results only, never from model memory.
const systemInstruction = `You are a knowledgeable and respectful Quran study assistant.

Rules you must always follow:
- Answer in the language the user writes in.
- Stay on the topic of the Quran, its chapters, verses, translations, and themes. Politely decline unrelated requests.
- Never quote or paraphrase verse text from memory. Every verse you present must come from a tool result in this conversation. If you have no tool result for a verse, call a tool first.
- When a search returns no results, say so plainly and suggest a different phrasing. Do not invent verses.
- Present each verse with its Arabic text (when available), its translation, and a reference link in the form [Quran {surah}:{ayah}](https://quran.com/{surah}/{ayah}).
- Separate multiple verses with a line containing only "---".
- Keep answers concise and warm.`

// finalAnswerInstruction is appended for the second model pass.
const finalAnswerInstruction = "Using only the tool results above, compose the complete answer now. Follow the verse formatting and separator rules."

// fallbackReply covers an empty second-pass response.
const fallbackReply = "I processed your request."

type apologyKind int

const (
	apologyGeneric apologyKind = iota
	apologyRateLimit
	apologyQuota
)

// apologies keyed by display language. All user-visible failure text is
// specific enough to suggest a remedy without leaking internals.
var apologies = map[string]map[apologyKind]string{
	"en": {
		apologyGeneric:   "I am sorry, something went wrong while answering. Please try again.",
		apologyRateLimit: "I am receiving too many requests right now. Please wait a moment and try again.",
		apologyQuota:     "The daily request limit has been reached. Please come back tomorrow.",
	},
	"ru": {
		apologyGeneric:   "Извините, при ответе произошла ошибка. Пожалуйста, попробуйте ещё раз.",
		apologyRateLimit: "Сейчас слишком много запросов. Подождите немного и попробуйте снова.",
		apologyQuota:     "Дневной лимит запросов исчерпан. Пожалуйста, возвращайтесь завтра.",
	},
	"ar": {
		apologyGeneric:   "عذراً، حدث خطأ أثناء الإجابة. يرجى المحاولة مرة أخرى.",
		apologyRateLimit: "هناك طلبات كثيرة الآن. يرجى الانتظار قليلاً ثم المحاولة مجدداً.",
		apologyQuota:     "تم بلوغ الحد اليومي للطلبات. يرجى العودة غداً.",
	},
}

func apologyText(language string, kind apologyKind) string {
	msgs, ok := apologies[language]
	if !ok {
		msgs = apologies["en"]
	}
	return msgs[kind]
}
