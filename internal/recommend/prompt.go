package recommend

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNoAnswers is returned when a poll carries nothing usable.
var ErrNoAnswers = errors.New("no poll answers")

const pairTemplate = `Пожалуйста, порекомендуй мне один фильм, похожий по духу и ключевым характеристикам на фильмы, строго указанные по названиям как "%[1]s" и "%[2]s".

Инструкции:
1. Проверь, что строка "%[1]s" является точным названием известного тебе фильма и не содержит ничего, кроме названия. Если это не так, ответь: "Фильм \"%[1]s\" не найден." и заверши ответ.
2. Выполни ту же проверку для строки "%[2]s".
3. Если оба фильма найдены, проанализируй жанр, темы, атмосферу, стиль и режиссуру и выбери фильм, явно похожий на оба.
4. Ответь строго двумя строками:
Строка 1: "Я рекомендую фильм \"[название рекомендованного фильма]\", потому что фильмы \"%[1]s\" и \"%[2]s\" похожи [краткое описание общих характеристик]."
Строка 2: "Поэтому \"[название рекомендованного фильма]\" - отличный вариант для просмотра."
`

const pollTemplate = `Порекомендуй мне один фильм на основе следующих предпочтений:
%s
Дай только название фильма и год выпуска.
`

// PairPrompt asks for a single movie similar to both titles.
func PairPrompt(movie1, movie2 string) string {
	return fmt.Sprintf(pairTemplate, movie1, movie2)
}

// pollPhrases maps question ids to sentence templates.
var pollPhrases = map[int]string{
	0: "Я хочу испытать настроение: %s.",
	1: "Мне интересен жанр: %s.",
	2: "Я предпочитаю смотреть фильмы: %sом.",
	3: "Мне нравится %s стиль.",
	4: "Мне нравится %s сюжет.",
	5: "Мне нравится %s главный герой.",
	6: "Мне нравится %s элемент фильма.",
	7: "Для меня важен %s элемент фильма.",
	8: "Мне нравится смотреть в %s.",
	9: "Мне нравится %s уровень реализма.",
}

const genresPhrase = "Мне интересны жанры: %s."

// PollPrompt renders poll answers keyed by question id. Unknown ids are
// ignored; keys that are not integers are an error.
func PollPrompt(answers map[string]any) (string, error) {
	if len(answers) == 0 {
		return "", ErrNoAnswers
	}
	ids := make([]int, 0, len(answers))
	byID := make(map[int]any, len(answers))
	for key, answer := range answers {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return "", fmt.Errorf("question id %q: %w", key, err)
		}
		ids = append(ids, id)
		byID[id] = answer
	}
	sort.Ints(ids)

	var prefs []string
	for _, id := range ids {
		phrase, ok := pollPhrases[id]
		if !ok {
			continue
		}
		answer := byID[id]
		if list, isList := answer.([]any); isList && id == 1 {
			phrase = genresPhrase
			answer = list
		}
		prefs = append(prefs, fmt.Sprintf(phrase, formatAnswer(answer)))
	}
	if len(prefs) == 0 {
		return "", ErrNoAnswers
	}
	return fmt.Sprintf(pollTemplate, strings.Join(prefs, " ")), nil
}

func formatAnswer(answer any) string {
	switch v := answer.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatAnswer(item))
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
