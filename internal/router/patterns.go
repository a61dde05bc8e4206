package router

import "strings"

// cannedResponse pairs trigger phrases with an instant reply.
type cannedResponse struct {
	triggers []string
	reply    string
}

// Instant-route patterns: greetings, thanks, farewells, help and small
// talk. Matching is exact after trimming, plus a prefix check for the
// greeting family ("안녕하세요!" still greets).
var cannedResponses = []cannedResponse{
	{
		triggers: []string{"안녕", "안녕하세요", "하이", "헬로", "hi", "hello", "hey"},
		reply:    "안녕하세요! 수수료, 소득, 환수 내역 등 궁금하신 내용을 질문해 주세요.",
	},
	{
		triggers: []string{"고마워", "감사", "감사합니다", "고맙습니다", "thanks", "thank you"},
		reply:    "도움이 되어 기쁩니다. 더 궁금하신 점이 있으면 말씀해 주세요.",
	},
	{
		triggers: []string{"잘가", "안녕히", "바이", "bye", "goodbye", "잘있어"},
		reply:    "이용해 주셔서 감사합니다. 좋은 하루 보내세요!",
	},
	{
		triggers: []string{"도움말", "help", "사용법", "뭘 할 수 있어", "무엇을 할 수 있니"},
		reply:    "수수료 조회, 소득 내역, 환수 내역, 시책 내역 등을 질문하실 수 있습니다. 예: \"3월 수수료 얼마야?\"",
	},
	{
		triggers: []string{"너 누구야", "누구세요", "이름이 뭐야", "who are you"},
		reply:    "수수료 명세 안내를 도와드리는 상담 도우미입니다.",
	},
}

// offTopicCategory pairs a domain-exclusion keyword set with a redirect
// message. First matching category wins.
type offTopicCategory struct {
	name     string
	keywords []string
	redirect string
}

var offTopicCategories = []offTopicCategory{
	{
		name:     "investment",
		keywords: []string{"주식", "비트코인", "코인", "투자 추천", "재테크", "부동산"},
		redirect: "투자 관련 상담은 도와드리기 어렵습니다. 수수료나 소득 내역에 대해 질문해 주세요.",
	},
	{
		name:     "weather",
		keywords: []string{"날씨", "기온", "비 와", "미세먼지"},
		redirect: "날씨 정보는 제공하지 않습니다. 수수료 관련 내용을 질문해 주세요.",
	},
	{
		name:     "food",
		keywords: []string{"맛집", "메뉴 추천", "저녁 뭐 먹", "점심 뭐 먹", "레시피"},
		redirect: "음식 관련 질문은 답변드리기 어렵습니다. 수수료 관련 내용을 질문해 주세요.",
	},
	{
		name:     "entertainment",
		keywords: []string{"영화", "드라마", "노래 추천", "게임 추천", "연예인"},
		redirect: "엔터테인먼트 관련 질문은 답변드리기 어렵습니다. 수수료 관련 내용을 질문해 주세요.",
	},
	{
		name:     "coding",
		keywords: []string{"코드 짜", "프로그래밍", "파이썬", "자바스크립트", "버그 고쳐"},
		redirect: "프로그래밍 관련 질문은 답변드리기 어렵습니다. 수수료 관련 내용을 질문해 주세요.",
	},
	{
		name:     "shopping",
		keywords: []string{"쇼핑", "할인", "최저가", "구매 추천"},
		redirect: "쇼핑 정보는 제공하지 않습니다. 수수료 관련 내용을 질문해 주세요.",
	},
	{
		name:     "translation",
		keywords: []string{"번역해", "영작", "translate"},
		redirect: "번역은 도와드리기 어렵습니다. 수수료 관련 내용을 질문해 주세요.",
	},
	{
		name:     "health",
		keywords: []string{"다이어트", "운동 추천", "병원 추천", "증상"},
		redirect: "건강 관련 상담은 도와드리기 어렵습니다. 수수료 관련 내용을 질문해 주세요.",
	},
	{
		name:     "travel",
		keywords: []string{"여행지", "항공권", "호텔 추천", "여행 추천"},
		redirect: "여행 정보는 제공하지 않습니다. 수수료 관련 내용을 질문해 주세요.",
	},
}

// bareKeyword pairs a single domain noun with the clarifying question
// offered when the query is just that noun and nothing else.
var bareKeywords = map[string]string{
	"수수료": "수수료의 어떤 내용이 궁금하신가요? 예: 이번 달 수수료 총액, 보험사별 수수료, 환수 내역",
	"계약":  "계약의 어떤 내용이 궁금하신가요? 예: 계약 건수, 계약별 수수료, 유지 현황",
	"환수":  "환수의 어떤 내용이 궁금하신가요? 예: 이번 달 환수 금액, 환수 사유, 환수 대상 계약",
	"소득":  "소득의 어떤 내용이 궁금하신가요? 예: 이번 달 실지급액, 소득 구성, 월별 추이",
	"시책":  "시책의 어떤 내용이 궁금하신가요? 예: 시책 지급액, 시책 기준, 달성 현황",
	"지급":  "지급의 어떤 내용이 궁금하신가요? 예: 지급 일정, 지급 총액, 지급 기준",
}

// fillerWords are known non-questions that ask for elaboration.
var fillerWords = map[string]struct{}{
	"음":   {},
	"어":   {},
	"그":   {},
	"저기":  {},
	"글쎄":  {},
	"몰라":  {},
	"응":   {},
	"ㅇㅇ":  {},
	"ㅋㅋ":  {},
	"um":  {},
	"uh":  {},
	"hmm": {},
}

func matchCanned(query string) (string, bool) {
	lower := strings.ToLower(query)
	for _, c := range cannedResponses {
		for _, trigger := range c.triggers {
			if lower == trigger || strings.HasPrefix(lower, trigger+" ") ||
				strings.HasPrefix(lower, trigger+"!") || strings.HasPrefix(lower, trigger+"?") {
				return c.reply, true
			}
		}
	}
	return "", false
}

func matchOffTopic(query string) (category, redirect string, ok bool) {
	lower := strings.ToLower(query)
	for _, c := range offTopicCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name, c.redirect, true
			}
		}
	}
	return "", "", false
}

func matchBareKeyword(query string) (string, bool) {
	q, ok := bareKeywords[query]
	return q, ok
}

func isFiller(query string) bool {
	_, ok := fillerWords[strings.ToLower(query)]
	return ok
}
