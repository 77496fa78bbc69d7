package tutor

import (
	"slices"

	"github.com/MrWong99/lingotutor/pkg/types"
)

var grammarCatalog = []types.Exercise{
	{
		Title:       "Present Simple Tense",
		Description: "Practice using the present simple tense to talk about habits, routines, and general truths. We'll work on forming sentences correctly and understanding when to use this tense.",
		Example:     "I usually wake up at 7 AM. She works in a hospital. The sun rises in the east.",
	},
	{
		Title:       "Past Simple Tense",
		Description: "Learn to talk about completed actions in the past. We'll practice regular and irregular verbs, and understand when to use the past simple tense.",
		Example:     "I visited Paris last summer. She studied English for three years. They played football yesterday.",
	},
	{
		Title:       "Future Tense",
		Description: "Explore different ways to talk about the future in English. We'll practice using will, going to, and present continuous for future plans.",
		Example:     "I will help you tomorrow. She is going to visit her grandmother. We are meeting at 3 PM.",
	},
	{
		Title:       "Countable and Uncountable Nouns",
		Description: "Learn the difference between countable and uncountable nouns, and how to use them with appropriate determiners and quantifiers.",
		Example:     "I have three books (countable). I need some water (uncountable). There are many people here.",
	},
	{
		Title:       "Articles (a, an, the)",
		Description: "Master the use of definite and indefinite articles. Learn when to use a, an, the, or no article at all.",
		Example:     "I saw a cat in the garden. An apple a day keeps the doctor away. The sun is bright today.",
	},
	{
		Title:       "Prepositions of Time",
		Description: "Practice using prepositions like in, on, at, during, and for to talk about time correctly.",
		Example:     "I have a meeting at 2 PM. She was born in 1990. We go skiing in winter.",
	},
	{
		Title:       "Comparatives and Superlatives",
		Description: "Learn to compare things using comparative and superlative forms of adjectives and adverbs.",
		Example:     "This book is more interesting than that one. She is the tallest person in the class. This is the best movie I've ever seen.",
	},
	{
		Title:       "Modal Verbs",
		Description: "Understand how to use modal verbs like can, could, must, should, may, and might to express ability, possibility, obligation, and advice.",
		Example:     "I can speak French. You should study harder. She must finish her homework.",
	},
	{
		Title:       "Subject-Verb Agreement",
		Description: "Practice ensuring that verbs agree with their subjects in number and person. Learn the rules for singular and plural subjects.",
		Example:     "He plays football. They play football. The book is on the table. The books are on the table.",
	},
	{
		Title:       "Question Formation",
		Description: "Learn to form different types of questions in English: yes/no questions, wh-questions, and tag questions.",
		Example:     "Do you like coffee? Where do you live? You speak English, don't you?",
	},
}

var grammarTopics = []string{
	"Learn how to use the present simple tense in English.",
	"Understand the rules for the past simple tense.",
	"Explore how to talk about the future in English.",
	"Distinguish between countable and uncountable nouns.",
	"Master the use of articles in English.",
	"Learn how to use in, on, at, and other time prepositions.",
	"Form and use comparatives and superlatives.",
	"Understand can, could, must, should, and more.",
	"Ensure verbs agree with their subjects.",
	"How to form questions in English.",
}

var vocabularyCatalog = []types.Exercise{
	{
		Title:       "Daily Activities",
		Description: "Practice using vocabulary related to everyday activities and routines. We'll learn words for morning routines, work activities, and evening habits.",
		Example:     "I wake up at 7 AM, brush my teeth, and have breakfast. Then I commute to work and start my daily tasks.",
	},
	{
		Title:       "Food and Cooking",
		Description: "Expand your vocabulary for different types of food, cooking methods, and dining experiences. Learn to describe flavors, ingredients, and cooking processes.",
		Example:     "I love cooking pasta dishes. I usually sauté vegetables, boil the pasta, and then combine them with a delicious sauce.",
	},
	{
		Title:       "Travel and Transportation",
		Description: "Learn vocabulary for different modes of transportation, travel planning, and describing journeys. Practice talking about destinations and travel experiences.",
		Example:     "I prefer taking the train for long journeys because it's more comfortable than flying. I enjoy watching the scenery pass by.",
	},
	{
		Title:       "Work and Careers",
		Description: "Master professional vocabulary for different jobs, workplace activities, and career development. Learn to discuss work responsibilities and career goals.",
		Example:     "I work as a software developer. My daily tasks include coding, attending meetings, and collaborating with team members on projects.",
	},
	{
		Title:       "Health and Wellness",
		Description: "Build vocabulary for health, fitness, and medical topics. Learn to describe symptoms, discuss healthy habits, and talk about medical appointments.",
		Example:     "I try to maintain a healthy lifestyle by exercising regularly, eating nutritious food, and getting enough sleep each night.",
	},
	{
		Title:       "Technology and Internet",
		Description: "Understand modern technology terms and internet-related vocabulary. Learn to discuss devices, apps, and digital experiences.",
		Example:     "I use various apps on my smartphone for productivity, social media, and entertainment. I also enjoy learning new software programs.",
	},
	{
		Title:       "Weather and Seasons",
		Description: "Learn to describe different weather conditions and seasonal changes. Practice talking about climate, temperature, and weather-related activities.",
		Example:     "I love spring weather when it's warm but not too hot. I enjoy going for walks and seeing flowers bloom everywhere.",
	},
	{
		Title:       "Family and Relationships",
		Description: "Master vocabulary for family members, relationships, and social connections. Learn to describe family dynamics and personal relationships.",
		Example:     "I have a close relationship with my siblings. We often spend time together on weekends and support each other through difficult times.",
	},
	{
		Title:       "Hobbies and Entertainment",
		Description: "Expand your vocabulary for leisure activities, hobbies, and entertainment. Learn to discuss interests, sports, and recreational activities.",
		Example:     "My hobbies include reading novels, playing guitar, and hiking. I also enjoy watching movies and trying new restaurants.",
	},
	{
		Title:       "Shopping and Money",
		Description: "Learn vocabulary for shopping, banking, and financial matters. Practice discussing purchases, budgeting, and financial planning.",
		Example:     "I usually shop online for convenience, but I prefer buying clothes in stores so I can try them on. I try to budget my expenses carefully.",
	},
}

var vocabularyTopics = []string{
	"Learn vocabulary for common daily activities and routines.",
	"Expand your vocabulary related to food, cooking, and dining.",
	"Master vocabulary for traveling and different modes of transport.",
	"Learn professional vocabulary and workplace terminology.",
	"Build vocabulary for health, fitness, and medical topics.",
	"Understand modern technology and internet-related terms.",
	"Learn to describe weather conditions and seasonal changes.",
	"Master vocabulary for family members and relationships.",
	"Expand your vocabulary for leisure activities and entertainment.",
	"Learn vocabulary for shopping, banking, and financial matters.",
}

// catalog returns the built-in exercises and their one-line summaries for
// category, or nils when the category is generated.
func catalog(category types.ExerciseCategory) ([]types.Exercise, []string) {
	switch category {
	case types.CategoryGrammar:
		return grammarCatalog, grammarTopics
	case types.CategoryVocabulary:
		return vocabularyCatalog, vocabularyTopics
	}
	return nil, nil
}

func catalogTopics(category types.ExerciseCategory) []types.ExerciseListItem {
	exercises, summaries := catalog(category)
	if exercises == nil {
		return nil
	}
	items := make([]types.ExerciseListItem, len(exercises))
	for i, ex := range exercises {
		items[i] = types.ExerciseListItem{Title: ex.Title, Description: summaries[i]}
	}
	return items
}

func catalogExercise(category types.ExerciseCategory, title string) (types.Exercise, bool) {
	exercises, _ := catalog(category)
	i := slices.IndexFunc(exercises, func(ex types.Exercise) bool { return ex.Title == title })
	if i < 0 {
		return types.Exercise{}, false
	}
	ex := exercises[i]
	ex.Category = category
	return ex, true
}

func conversationExercise(title string) types.Exercise {
	return types.Exercise{
		Category:    types.CategoryConversation,
		Title:       title,
		Description: "Freely discuss this topic. When you're done, say 'I'm done' to get feedback.",
		Example:     "You can start by sharing your first thoughts on the topic.",
	}
}
